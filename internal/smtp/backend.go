// Package smtp binds the inbound SMTP transport to the ingestion pipeline.
package smtp

import (
	"context"
	"log/slog"

	"github.com/emersion/go-smtp"

	"github.com/coldpath/mail-ingest/internal/email"
	"github.com/coldpath/mail-ingest/internal/pipeline"
)

// Ingestor is the pipeline boundary the transport drives. An error return
// rejects the message so the sender can apply its own bounce/retry policy.
type Ingestor interface {
	Ingest(ctx context.Context, env *email.Envelope) (*pipeline.Result, error)
}

// Backend creates one Session per inbound connection.
type Backend struct {
	ingestor Ingestor

	// recipientDomain, when non-empty, restricts RCPT TO addresses to
	// that domain.
	recipientDomain string
}

// NewBackend creates an SMTP backend feeding the given ingestor.
func NewBackend(ingestor Ingestor, recipientDomain string) *Backend {
	return &Backend{
		ingestor:        ingestor,
		recipientDomain: recipientDomain,
	}
}

// NewSession implements smtp.Backend.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	slog.Debug("new SMTP connection", "remote", c.Conn().RemoteAddr().String())
	return &Session{backend: b}, nil
}
