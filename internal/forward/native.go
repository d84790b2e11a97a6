package forward

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coldpath/mail-ingest/internal/email"
)

// NativeRelay hands the original raw bytes to the transmitter unmodified,
// once per target address. The transmitter becomes responsible for
// delivery. A failed target aborts the remaining sends.
type NativeRelay struct {
	transmitter Transmitter
}

// NewNativeRelay creates a NativeRelay over the given transmitter.
func NewNativeRelay(t Transmitter) *NativeRelay {
	return &NativeRelay{transmitter: t}
}

// Forward relays the raw message to each target in order. The first
// failure returns immediately; targets after it are not attempted.
func (r *NativeRelay) Forward(ctx context.Context, env *email.Envelope, msg *email.Email, targets []string) error {
	for _, target := range targets {
		if err := r.transmitter.Transmit(ctx, "", []string{target}, env.Raw); err != nil {
			return fmt.Errorf("failed to relay to %s: %w", target, err)
		}
		slog.Debug("relayed message",
			"target", target,
			"message_id", msg.MessageID,
		)
	}
	return nil
}

// Name returns the strategy name.
func (r *NativeRelay) Name() string {
	return "relay"
}
