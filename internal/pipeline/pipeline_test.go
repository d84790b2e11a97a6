package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/coldpath/mail-ingest/internal/email"
)

// fakeMailStore records inserted records and optionally fails.
type fakeMailStore struct {
	inserted []*email.Record
	err      error
}

func (f *fakeMailStore) Insert(ctx context.Context, rec *email.Record) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

type fakeAttachmentStore struct {
	refs []string
	err  error

	gotMailbox string
	calls      int
}

func (f *fakeAttachmentStore) Put(ctx context.Context, mailbox string, attachments []email.Attachment) ([]string, error) {
	f.calls++
	f.gotMailbox = mailbox
	if f.err != nil {
		return nil, f.err
	}
	return f.refs, nil
}

type fakeForwarder struct {
	err   error
	calls int
}

func (f *fakeForwarder) Forward(ctx context.Context, env *email.Envelope, msg *email.Email, targets []string) error {
	f.calls++
	return f.err
}

func (f *fakeForwarder) Name() string { return "fake" }

type fakeNotifier struct {
	err   error
	calls int
}

func (f *fakeNotifier) Notify(ctx context.Context, msg *email.Email, mailbox string) error {
	f.calls++
	return f.err
}

func okParse(raw []byte) (*email.Email, error) {
	return &email.Email{
		From:      "alice@example.com",
		To:        []string{"support@example.org"},
		Subject:   "Hello",
		TextBody:  "hi",
		MessageID: "<m1@example.com>",
		Headers:   map[string]string{},
	}, nil
}

func envelope() *email.Envelope {
	return &email.Envelope{
		From: "alice@example.com",
		To:   "support@example.org",
		Raw:  []byte("From: alice@example.com\r\n\r\nhi"),
	}
}

func TestIngestMinimalConfigCompletes(t *testing.T) {
	t.Parallel()

	store := &fakeMailStore{}
	p := New(Config{Parse: okParse, Store: store})

	res, err := p.Ingest(context.Background(), envelope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("state: got %s, want %s", res.State, StateCompleted)
	}
	if res.ForwardErr != nil || res.NotifyErr != nil {
		t.Errorf("best-effort errors should be nil: forward=%v notify=%v", res.ForwardErr, res.NotifyErr)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted records: got %d, want 1", len(store.inserted))
	}

	rec := store.inserted[0]
	if rec.Mailbox != "support" {
		t.Errorf("mailbox: got %q, want %q", rec.Mailbox, "support")
	}
	if rec.ID == "" {
		t.Error("record ID should be assigned")
	}
	if rec.AttachmentURLs == nil || len(rec.AttachmentURLs) != 0 {
		t.Errorf("attachment refs: got %v, want empty non-nil slice", rec.AttachmentURLs)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("created at should be set")
	}
}

func TestIngestParseFailure(t *testing.T) {
	t.Parallel()

	store := &fakeMailStore{}
	p := New(Config{
		Parse: func(raw []byte) (*email.Email, error) {
			return nil, errors.New("malformed header block")
		},
		Store: store,
	})

	res, err := p.Ingest(context.Background(), envelope())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("error type: got %T, want *ParseError", err)
	}
	if res.State != StateFailed {
		t.Errorf("state: got %s, want %s", res.State, StateFailed)
	}
	if res.FailedState != StateParsed {
		t.Errorf("failed state: got %s, want %s", res.FailedState, StateParsed)
	}
	if len(store.inserted) != 0 {
		t.Error("nothing should be persisted after a parse failure")
	}
}

func TestIngestAttachmentStoreFailureAbortsBeforePersist(t *testing.T) {
	t.Parallel()

	store := &fakeMailStore{}
	atts := &fakeAttachmentStore{err: errors.New("bucket unavailable")}
	p := New(Config{Parse: okParse, Attachments: atts, Store: store})

	res, err := p.Ingest(context.Background(), envelope())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var storeErr *AttachmentStoreError
	if !errors.As(err, &storeErr) {
		t.Errorf("error type: got %T, want *AttachmentStoreError", err)
	}
	if res.FailedState != StateAttachmentsStored {
		t.Errorf("failed state: got %s, want %s", res.FailedState, StateAttachmentsStored)
	}
	if len(store.inserted) != 0 {
		t.Error("nothing should be persisted after an attachment store failure")
	}
}

func TestIngestPersistenceFailure(t *testing.T) {
	t.Parallel()

	store := &fakeMailStore{err: errors.New("connection refused")}
	notifier := &fakeNotifier{}
	p := New(Config{Parse: okParse, Store: store, Notifier: notifier})

	res, err := p.Ingest(context.Background(), envelope())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Errorf("error type: got %T, want *PersistenceError", err)
	}
	if res.FailedState != StatePersisted {
		t.Errorf("failed state: got %s, want %s", res.FailedState, StatePersisted)
	}
	if notifier.calls != 0 {
		t.Error("notifier should not run after a fatal failure")
	}
}

func TestIngestAttachmentRefsFlowIntoRecord(t *testing.T) {
	t.Parallel()

	store := &fakeMailStore{}
	atts := &fakeAttachmentStore{refs: []string{"support/2025/03/abc-a.pdf"}}
	p := New(Config{Parse: okParse, Attachments: atts, Store: store})

	if _, err := p.Ingest(context.Background(), envelope()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atts.gotMailbox != "support" {
		t.Errorf("attachment store mailbox: got %q, want %q", atts.gotMailbox, "support")
	}
	rec := store.inserted[0]
	if len(rec.AttachmentURLs) != 1 || rec.AttachmentURLs[0] != "support/2025/03/abc-a.pdf" {
		t.Errorf("attachment refs: got %v", rec.AttachmentURLs)
	}
}

func TestIngestForwardFailureDoesNotAffectOutcome(t *testing.T) {
	t.Parallel()

	store := &fakeMailStore{}
	fwd := &fakeForwarder{err: errors.New("relay down")}
	notifier := &fakeNotifier{}
	p := New(Config{
		Parse:          okParse,
		Store:          store,
		Forwarder:      fwd,
		ForwardTargets: []string{"dest@example.net"},
		Notifier:       notifier,
	})

	res, err := p.Ingest(context.Background(), envelope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("state: got %s, want %s", res.State, StateCompleted)
	}
	var fwdErr *ForwardError
	if !errors.As(res.ForwardErr, &fwdErr) {
		t.Errorf("forward error type: got %T, want *ForwardError", res.ForwardErr)
	}
	if len(store.inserted) != 1 {
		t.Error("record should be persisted despite the forward failure")
	}
	if notifier.calls != 1 {
		t.Error("notifier should still run after a forward failure")
	}
}

func TestIngestNotifyFailureDoesNotAffectOutcome(t *testing.T) {
	t.Parallel()

	store := &fakeMailStore{}
	notifier := &fakeNotifier{err: errors.New("chat not found")}
	p := New(Config{Parse: okParse, Store: store, Notifier: notifier})

	res, err := p.Ingest(context.Background(), envelope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("state: got %s, want %s", res.State, StateCompleted)
	}
	var notifyErr *NotificationError
	if !errors.As(res.NotifyErr, &notifyErr) {
		t.Errorf("notify error type: got %T, want *NotificationError", res.NotifyErr)
	}
	if res.Record == nil {
		t.Error("record should be reported despite the notify failure")
	}
}

func TestIngestForwardSkippedWithoutTargets(t *testing.T) {
	t.Parallel()

	fwd := &fakeForwarder{}
	p := New(Config{Parse: okParse, Store: &fakeMailStore{}, Forwarder: fwd})

	if _, err := p.Ingest(context.Background(), envelope()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fwd.calls != 0 {
		t.Errorf("forwarder calls: got %d, want 0 without targets", fwd.calls)
	}
}

func TestIngestEnvelopeFallbackForMissingAddresses(t *testing.T) {
	t.Parallel()

	store := &fakeMailStore{}
	p := New(Config{
		Parse: func(raw []byte) (*email.Email, error) {
			return &email.Email{Headers: map[string]string{}}, nil
		},
		Store: store,
	})

	if _, err := p.Ingest(context.Background(), envelope()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := store.inserted[0]
	if rec.Email.From != "alice@example.com" {
		t.Errorf("from fallback: got %q, want envelope sender", rec.Email.From)
	}
	if len(rec.Email.To) != 1 || rec.Email.To[0] != "support@example.org" {
		t.Errorf("to fallback: got %v, want envelope recipient", rec.Email.To)
	}
}

func TestIngestTwiceProducesDistinctRecords(t *testing.T) {
	t.Parallel()

	store := &fakeMailStore{}
	p := New(Config{Parse: okParse, Store: store})

	if _, err := p.Ingest(context.Background(), envelope()); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := p.Ingest(context.Background(), envelope()); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("inserted records: got %d, want 2", len(store.inserted))
	}
	if store.inserted[0].ID == store.inserted[1].ID {
		t.Error("re-ingesting the same message should produce a new record ID")
	}
}
