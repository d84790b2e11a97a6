package forward

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/coldpath/mail-ingest/internal/email"
)

// subjectPrefix is prepended to forwarded subjects unless the subject
// already carries it (case-sensitive exact match on the prefix).
const subjectPrefix = "Fwd:"

// Reconstructor builds a new MIME message that mirrors and annotates the
// original, then transmits it with the configured sender. Attachments are
// re-attached as base64; parts whose content could not be decoded are
// re-attached empty.
type Reconstructor struct {
	sender      string
	transmitter Transmitter
}

// NewReconstructor creates a Reconstructor sending from the given address.
func NewReconstructor(sender string, t Transmitter) *Reconstructor {
	return &Reconstructor{sender: sender, transmitter: t}
}

// Forward builds the annotated copy and transmits it with one recipient
// entry per target.
func (r *Reconstructor) Forward(ctx context.Context, env *email.Envelope, msg *email.Email, targets []string) error {
	raw, err := r.buildMessage(msg, targets)
	if err != nil {
		return fmt.Errorf("failed to build forwarded message: %w", err)
	}
	if err := r.transmitter.Transmit(ctx, r.sender, targets, raw); err != nil {
		return fmt.Errorf("failed to transmit forwarded message: %w", err)
	}
	return nil
}

// Name returns the strategy name.
func (r *Reconstructor) Name() string {
	return "reconstruct"
}

// ForwardSubject returns the subject with the Fwd: prefix applied exactly once.
func ForwardSubject(subject string) string {
	if strings.HasPrefix(subject, subjectPrefix) {
		return subject
	}
	return subjectPrefix + " " + subject
}

// buildMessage constructs the forwarded MIME message: forwarding headers,
// a synthesized plain-text body, an HTML alternative when the original had
// one, and the original attachments.
func (r *Reconstructor) buildMessage(msg *email.Email, targets []string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", r.sender)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(targets, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", ForwardSubject(msg.Subject))
	fmt.Fprintf(&buf, "X-Forwarded-For: %s\r\n", msg.From)
	fmt.Fprintf(&buf, "X-Original-Date: %s\r\n", msg.Date.Format(time.RFC1123Z))
	if msg.MessageID != "" {
		fmt.Fprintf(&buf, "X-Original-Message-ID: %s\r\n", msg.MessageID)
	}
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	if err := writeBody(writer, msg); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", att.ContentType)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s", mime.QEncoding.Encode("UTF-8", att.Filename)))

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if len(att.Content) > 0 {
			part.Write([]byte(encodeBase64WithLineBreaks(att.Content)))
		}
	}

	writer.Close()
	return buf.Bytes(), nil
}

// writeBody writes the text body, paired with an HTML alternative when the
// original message carried one.
func writeBody(writer *multipart.Writer, msg *email.Email) error {
	text := headerBlockText(msg) + msg.TextBody

	if msg.HtmlBody == "" {
		bodyHeader := make(textproto.MIMEHeader)
		bodyHeader.Set("Content-Type", "text/plain; charset=UTF-8")
		part, err := writer.CreatePart(bodyHeader)
		if err != nil {
			return fmt.Errorf("failed to create body part: %w", err)
		}
		part.Write([]byte(text))
		return nil
	}

	var altBuf bytes.Buffer
	altWriter := multipart.NewWriter(&altBuf)

	textHeader := make(textproto.MIMEHeader)
	textHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	textPart, err := altWriter.CreatePart(textHeader)
	if err != nil {
		return fmt.Errorf("failed to create text part: %w", err)
	}
	textPart.Write([]byte(text))

	htmlHeader := make(textproto.MIMEHeader)
	htmlHeader.Set("Content-Type", "text/html; charset=UTF-8")
	htmlPart, err := altWriter.CreatePart(htmlHeader)
	if err != nil {
		return fmt.Errorf("failed to create html part: %w", err)
	}
	htmlPart.Write([]byte(headerBlockHTML(msg) + msg.HtmlBody + "</div>"))

	if err := altWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize alternative part: %w", err)
	}

	altHeader := make(textproto.MIMEHeader)
	altHeader.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", altWriter.Boundary()))
	altPart, err := writer.CreatePart(altHeader)
	if err != nil {
		return fmt.Errorf("failed to create alternative part: %w", err)
	}
	altPart.Write(altBuf.Bytes())

	return nil
}

// headerBlockText renders the fixed-format forwarding header block that
// precedes the original plain text.
func headerBlockText(msg *email.Email) string {
	var b strings.Builder
	b.WriteString("---------- Forwarded message ----------\r\n")
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "Date: %s\r\n", msg.Date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	b.WriteString("\r\n")
	return b.String()
}

// headerBlockHTML opens the bordered container wrapping the forwarded HTML.
// The caller closes the container.
func headerBlockHTML(msg *email.Email) string {
	var b strings.Builder
	b.WriteString(`<div style="border:1px solid #ccc; padding:12px; margin:8px 0;">`)
	b.WriteString("<p>---------- Forwarded message ----------<br>")
	fmt.Fprintf(&b, "From: %s<br>", msg.From)
	fmt.Fprintf(&b, "Date: %s<br>", msg.Date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Subject: %s<br>", msg.Subject)
	fmt.Fprintf(&b, "To: %s</p>", strings.Join(msg.To, ", "))
	return b.String()
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
