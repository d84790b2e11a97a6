// Package email defines the core mail data model shared by the ingestion pipeline.
package email

import (
	"strings"
	"time"
)

// Disposition values for attachments.
const (
	DispositionAttachment = "attachment"
	DispositionInline     = "inline"
)

// Envelope carries the transport-level addressing for one inbound message.
// It is distinct from the From/To header fields inside the MIME body and
// lives only for the duration of a single pipeline run.
type Envelope struct {
	From string
	To   string
	Raw  []byte
}

// Email represents a parsed email message with all its components.
// Once produced by the parser it is treated as immutable.
type Email struct {
	From        string
	To          []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Date        time.Time
	Attachments []Attachment
	MessageID   string
	InReplyTo   string
	ReplyTo     []string
	References  []string
	Headers     map[string]string
}

// Attachment represents a file attached to an email message.
// Size always equals len(Content); undecodable parts keep their slot
// with empty content so attachment counts are preserved.
type Attachment struct {
	Filename    string
	ContentType string
	Disposition string
	ContentID   string
	Content     []byte
	Size        int64
}

// Record is the persistence-ready aggregate handed to the mail store:
// the parsed email plus the object-store references for its attachments.
type Record struct {
	ID             string
	Mailbox        string
	Email          *Email
	AttachmentURLs []string
	CreatedAt      time.Time
}

// Mailbox derives the mailbox identifier from an envelope recipient
// address: the local part before the @. A comma-joined recipient list
// yields the local part of the first address.
func Mailbox(rcpt string) string {
	if i := strings.IndexByte(rcpt, ','); i >= 0 {
		rcpt = rcpt[:i]
	}
	rcpt = strings.TrimSpace(rcpt)
	if i := strings.IndexByte(rcpt, '@'); i >= 0 {
		return rcpt[:i]
	}
	return rcpt
}
