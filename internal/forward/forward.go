// Package forward re-transmits ingested messages to configured downstream
// recipients. Two strategies exist: relaying the original raw bytes
// unmodified, or reconstructing an annotated copy of the message. They are
// distinct code paths with different content semantics and are selected by
// configuration, never merged.
package forward

import (
	"context"

	"github.com/coldpath/mail-ingest/internal/email"
)

// Transmitter delivers a complete MIME message. relay.Transmitter is the
// production implementation.
type Transmitter interface {
	Transmit(ctx context.Context, sender string, recipients []string, raw []byte) error
}

// Strategy is the interface forwarding strategies implement.
type Strategy interface {
	// Forward re-transmits the message to the given target addresses.
	Forward(ctx context.Context, env *email.Envelope, msg *email.Email, targets []string) error

	// Name returns the human-readable name of this strategy.
	Name() string
}
