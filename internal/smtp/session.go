package smtp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-smtp"

	"github.com/coldpath/mail-ingest/internal/email"
	"github.com/coldpath/mail-ingest/internal/pipeline"
)

// Session handles one SMTP transaction: it records the envelope and hands
// the raw message to the pipeline on DATA.
type Session struct {
	backend *Backend
	from    string
	to      []string
}

// Mail records the envelope sender (MAIL FROM).
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt records an envelope recipient (RCPT TO), enforcing the recipient
// domain restriction when one is configured.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	address := extractAddress(to)

	if d := s.backend.recipientDomain; d != "" && !strings.HasSuffix(strings.ToLower(address), "@"+strings.ToLower(d)) {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Relay not permitted for this domain",
		}
	}

	s.to = append(s.to, address)
	return nil
}

// Data reads the full raw message and runs one pipeline ingestion. A fatal
// pipeline error rejects the message; the sending server applies its own
// retry policy.
func (s *Session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	env := &email.Envelope{
		From: s.from,
		To:   strings.Join(s.to, ","),
		Raw:  raw,
	}

	res, err := s.backend.ingestor.Ingest(context.Background(), env)
	if err != nil {
		return rejectFor(err, res)
	}
	return nil
}

// rejectFor maps a fatal stage error to an SMTP reply. Parse failures are
// permanent (the bytes will never parse); storage failures are transient so
// the sender may retry.
func rejectFor(err error, res *pipeline.Result) error {
	var parseErr *pipeline.ParseError
	if errors.As(err, &parseErr) {
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}

	stage := pipeline.StateFailed
	if res != nil {
		stage = res.FailedState
	}
	slog.Debug("rejecting message", "stage", stage)
	return &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Temporary ingestion failure, try again later",
	}
}

// Reset clears the transaction state.
func (s *Session) Reset() {
	s.from = ""
	s.to = nil
}

// Logout ends the session.
func (s *Session) Logout() error {
	return nil
}

// extractAddress extracts the bare address from a "Name <addr>" form.
func extractAddress(s string) string {
	if start := strings.Index(s, "<"); start != -1 {
		if end := strings.Index(s, ">"); end != -1 && end > start {
			return strings.TrimSpace(s[start+1 : end])
		}
	}
	return strings.TrimSpace(s)
}
