// Package pipeline drives one inbound message through parsing, attachment
// storage, persistence, forwarding, and notification.
//
// Parse, attachment storage, and persistence are fatal stages: a failure
// aborts the run and the transport sees a rejection. Forwarding and
// notification are best-effort: failures are logged with context and the
// run still completes, because a message counts as delivered the moment
// its row is durably written.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coldpath/mail-ingest/internal/email"
	"github.com/coldpath/mail-ingest/internal/forward"
)

// State names for a pipeline run. A run moves strictly forward; Failed is
// reachable from any state and terminal, as is Completed.
type State string

const (
	StateReceived          State = "received"
	StateParsed            State = "parsed"
	StateAttachmentsStored State = "attachments_stored"
	StatePersisted         State = "persisted"
	StateForwarded         State = "forwarded"
	StateNotified          State = "notified"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
)

// AttachmentStore writes attachments to durable blob storage, returning one
// reference per attachment in input order.
type AttachmentStore interface {
	Put(ctx context.Context, mailbox string, attachments []email.Attachment) ([]string, error)
}

// MailStore persists one mail record.
type MailStore interface {
	Insert(ctx context.Context, rec *email.Record) error
}

// Notifier delivers a new-mail notification.
type Notifier interface {
	Notify(ctx context.Context, msg *email.Email, mailbox string) error
}

// Config wires a Pipeline. Store and Parse are required; the rest are
// optional and their stages are skipped when absent.
type Config struct {
	Parse          func(raw []byte) (*email.Email, error)
	Attachments    AttachmentStore
	Store          MailStore
	Forwarder      forward.Strategy
	ForwardTargets []string
	Notifier       Notifier
}

// Pipeline is safe for concurrent use; each Ingest call is an independent
// run with no shared mutable state.
type Pipeline struct {
	cfg Config
	now func() time.Time
}

// Result reports the terminal state of one run. ForwardErr and NotifyErr
// carry best-effort stage failures that did not affect the outcome.
type Result struct {
	State State
	// FailedState names the stage a failed run was attempting.
	FailedState State
	Record      *email.Record
	ForwardErr  error
	NotifyErr   error
}

// New creates a Pipeline from the given configuration.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, now: time.Now}
}

// Ingest runs the full pipeline for one inbound message. A nil error means
// the message was accepted (persisted); the returned error is one of the
// typed fatal stage errors otherwise. The Envelope is owned by this call
// and not retained.
func (p *Pipeline) Ingest(ctx context.Context, env *email.Envelope) (*Result, error) {
	res := &Result{State: StateReceived}
	mailbox := email.Mailbox(env.To)

	msg, err := p.cfg.Parse(env.Raw)
	if err != nil {
		return p.fail(res, StateParsed, mailbox, "", &ParseError{Err: err})
	}
	if msg.From == "" {
		msg.From = env.From
	}
	if len(msg.To) == 0 {
		msg.To = []string{env.To}
	}
	res.State = StateParsed

	var refs []string
	if p.cfg.Attachments != nil {
		refs, err = p.cfg.Attachments.Put(ctx, mailbox, msg.Attachments)
		if err != nil {
			return p.fail(res, StateAttachmentsStored, mailbox, msg.MessageID, &AttachmentStoreError{Err: err})
		}
	} else {
		refs = []string{}
	}
	res.State = StateAttachmentsStored

	rec := &email.Record{
		ID:             uuid.New().String(),
		Mailbox:        mailbox,
		Email:          msg,
		AttachmentURLs: refs,
		CreatedAt:      p.now().UTC(),
	}
	if err := p.cfg.Store.Insert(ctx, rec); err != nil {
		return p.fail(res, StatePersisted, mailbox, msg.MessageID, &PersistenceError{Err: err})
	}
	res.State = StatePersisted
	res.Record = rec

	// The message is delivered from here on; the remaining stages never
	// change the outcome.
	if p.cfg.Forwarder != nil && len(p.cfg.ForwardTargets) > 0 {
		if err := p.cfg.Forwarder.Forward(ctx, env, msg, p.cfg.ForwardTargets); err != nil {
			res.ForwardErr = &ForwardError{Err: err}
			slog.Error("forward failed",
				"mailbox", mailbox,
				"message_id", msg.MessageID,
				"stage", StateForwarded,
				"strategy", p.cfg.Forwarder.Name(),
				"error", err,
			)
		} else {
			res.State = StateForwarded
		}
	}

	if p.cfg.Notifier != nil {
		if err := p.cfg.Notifier.Notify(ctx, msg, mailbox); err != nil {
			res.NotifyErr = &NotificationError{Err: err}
			slog.Error("notification failed",
				"mailbox", mailbox,
				"message_id", msg.MessageID,
				"stage", StateNotified,
				"error", err,
			)
		} else {
			res.State = StateNotified
		}
	}

	res.State = StateCompleted
	slog.Info("message ingested",
		"mailbox", mailbox,
		"message_id", msg.MessageID,
		"record_id", rec.ID,
		"attachments", len(refs),
	)
	return res, nil
}

// fail marks the run terminal, recording the stage that failed, and
// surfaces the fatal stage error to the transport.
func (p *Pipeline) fail(res *Result, at State, mailbox, messageID string, err error) (*Result, error) {
	res.FailedState = at
	res.State = StateFailed
	slog.Error("ingestion failed",
		"mailbox", mailbox,
		"message_id", messageID,
		"stage", res.FailedState,
		"error", err,
	)
	return res, err
}
