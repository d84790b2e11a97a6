package forward

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coldpath/mail-ingest/internal/email"
)

// fakeTransmitter records Transmit calls and fails chosen recipients.
type fakeTransmitter struct {
	calls    []transmitCall
	failRcpt string
}

type transmitCall struct {
	sender     string
	recipients []string
	raw        []byte
}

func (f *fakeTransmitter) Transmit(ctx context.Context, sender string, recipients []string, raw []byte) error {
	f.calls = append(f.calls, transmitCall{sender: sender, recipients: recipients, raw: raw})
	for _, rcpt := range recipients {
		if rcpt == f.failRcpt {
			return errors.New("simulated transmit failure")
		}
	}
	return nil
}

func sampleMessage() *email.Email {
	return &email.Email{
		From:      "alice@example.com",
		To:        []string{"support@example.org"},
		Subject:   "Hello",
		TextBody:  "original body",
		Date:      time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC),
		MessageID: "<orig-123@example.com>",
		Headers:   map[string]string{},
	}
}

func TestForwardSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"plain", "Hello", "Fwd: Hello"},
		{"already prefixed", "Fwd: Hello", "Fwd: Hello"},
		{"prefix is case sensitive", "FWD: Hello", "Fwd: FWD: Hello"},
		{"empty", "", "Fwd: "},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ForwardSubject(tt.subject); got != tt.want {
				t.Errorf("ForwardSubject(%q): got %q, want %q", tt.subject, got, tt.want)
			}
		})
	}
}

func TestNativeRelaySendsRawBytesPerTarget(t *testing.T) {
	t.Parallel()

	tx := &fakeTransmitter{}
	relay := NewNativeRelay(tx)
	env := &email.Envelope{
		From: "alice@example.com",
		To:   "support@example.org",
		Raw:  []byte("From: alice@example.com\r\n\r\nhi"),
	}

	err := relay.Forward(context.Background(), env, sampleMessage(), []string{"one@dest.com", "two@dest.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tx.calls) != 2 {
		t.Fatalf("transmit calls: got %d, want 2", len(tx.calls))
	}
	for i, want := range []string{"one@dest.com", "two@dest.com"} {
		call := tx.calls[i]
		if len(call.recipients) != 1 || call.recipients[0] != want {
			t.Errorf("call %d recipients: got %v, want [%s]", i, call.recipients, want)
		}
		if string(call.raw) != string(env.Raw) {
			t.Errorf("call %d: raw bytes were modified", i)
		}
		if call.sender != "" {
			t.Errorf("call %d sender: got %q, want empty (original envelope sender)", i, call.sender)
		}
	}
}

func TestNativeRelayAbortsOnFirstFailure(t *testing.T) {
	t.Parallel()

	tx := &fakeTransmitter{failRcpt: "two@dest.com"}
	relay := NewNativeRelay(tx)
	env := &email.Envelope{Raw: []byte("raw")}

	err := relay.Forward(context.Background(), env, sampleMessage(),
		[]string{"one@dest.com", "two@dest.com", "three@dest.com"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "two@dest.com") {
		t.Errorf("error should name the failing target, got: %v", err)
	}
	if len(tx.calls) != 2 {
		t.Errorf("transmit calls: got %d, want 2 (third target not attempted)", len(tx.calls))
	}
}

func TestReconstructorBuildsAnnotatedCopy(t *testing.T) {
	t.Parallel()

	tx := &fakeTransmitter{}
	rec := NewReconstructor("forwarder@example.org", tx)
	msg := sampleMessage()

	err := rec.Forward(context.Background(), &email.Envelope{}, msg, []string{"dest@example.net"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tx.calls) != 1 {
		t.Fatalf("transmit calls: got %d, want 1", len(tx.calls))
	}
	call := tx.calls[0]
	if call.sender != "forwarder@example.org" {
		t.Errorf("sender: got %q, want %q", call.sender, "forwarder@example.org")
	}
	if len(call.recipients) != 1 || call.recipients[0] != "dest@example.net" {
		t.Errorf("recipients: got %v, want [dest@example.net]", call.recipients)
	}

	raw := string(call.raw)
	for _, want := range []string{
		"From: forwarder@example.org\r\n",
		"To: dest@example.net\r\n",
		"Subject: Fwd: Hello\r\n",
		"X-Forwarded-For: alice@example.com\r\n",
		"X-Original-Date: Sat, 07 Mar 2025 12:00:00 +0000\r\n",
		"X-Original-Message-ID: <orig-123@example.com>\r\n",
		"MIME-Version: 1.0\r\n",
		"---------- Forwarded message ----------",
		"original body",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("built message missing %q", want)
		}
	}
}

func TestReconstructorOmitsMessageIDHeaderWhenAbsent(t *testing.T) {
	t.Parallel()

	tx := &fakeTransmitter{}
	rec := NewReconstructor("forwarder@example.org", tx)
	msg := sampleMessage()
	msg.MessageID = ""

	if err := rec.Forward(context.Background(), &email.Envelope{}, msg, []string{"dest@example.net"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(tx.calls[0].raw), "X-Original-Message-ID") {
		t.Error("X-Original-Message-ID should be omitted when the original had none")
	}
}

func TestReconstructorBuildsAlternativeForHTML(t *testing.T) {
	t.Parallel()

	tx := &fakeTransmitter{}
	rec := NewReconstructor("forwarder@example.org", tx)
	msg := sampleMessage()
	msg.HtmlBody = "<p>original html</p>"

	if err := rec.Forward(context.Background(), &email.Envelope{}, msg, []string{"dest@example.net"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := string(tx.calls[0].raw)
	for _, want := range []string{
		"multipart/alternative",
		"text/html; charset=UTF-8",
		`<div style="border:1px solid #ccc; padding:12px; margin:8px 0;">`,
		"<p>original html</p></div>",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("built message missing %q", want)
		}
	}
}

func TestReconstructorReattachesContent(t *testing.T) {
	t.Parallel()

	tx := &fakeTransmitter{}
	rec := NewReconstructor("forwarder@example.org", tx)
	msg := sampleMessage()
	msg.Attachments = []email.Attachment{
		{Filename: "hello.txt", ContentType: "text/plain", Content: []byte("Hello World"), Size: 11},
		{Filename: "broken.bin", ContentType: "application/octet-stream", Content: nil, Size: 0},
	}

	if err := rec.Forward(context.Background(), &email.Envelope{}, msg, []string{"dest@example.net"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := string(tx.calls[0].raw)
	if !strings.Contains(raw, "SGVsbG8gV29ybGQ=") {
		t.Error("attachment content should be base64 re-encoded")
	}
	if !strings.Contains(raw, "filename=hello.txt") {
		t.Error("attachment filename missing")
	}
	// The undecodable attachment keeps its part but carries no body.
	if !strings.Contains(raw, "filename=broken.bin") {
		t.Error("empty attachment should still get a part")
	}
}

func TestReconstructorFailureWrapsTransmitError(t *testing.T) {
	t.Parallel()

	tx := &fakeTransmitter{failRcpt: "dest@example.net"}
	rec := NewReconstructor("forwarder@example.org", tx)

	err := rec.Forward(context.Background(), &email.Envelope{}, sampleMessage(), []string{"dest@example.net"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to transmit forwarded message") {
		t.Errorf("unexpected error text: %v", err)
	}
}
