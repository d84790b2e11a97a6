// Package parser provides RFC 5322 email message parsing with MIME multipart support.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coldpath/mail-ingest/internal/email"
)

// Defaults applied to missing or malformed sub-fields. Only structural
// MIME corruption fails the parse; everything else degrades field by field.
const (
	defaultSubject     = "(no subject)"
	defaultFilename    = "unnamed"
	defaultContentType = "application/octet-stream"
)

// Parse parses a raw RFC 5322 email message into an Email.
// It handles plain text messages, multipart messages with text/html bodies,
// and attachments. Unrecognized MIME parts are logged as warnings.
func Parse(raw []byte) (*email.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &email.Email{
		To:         []string{},
		ReplyTo:    []string{},
		References: []string{},
		Headers:    make(map[string]string),
	}

	// Flatten headers into a map; on duplicate names the last occurrence wins.
	for key, values := range msg.Header {
		if len(values) > 0 {
			result.Headers[key] = values[len(values)-1]
		}
	}

	result.From = decodeHeader(msg.Header.Get("From"))
	result.To = parseAddressList(msg.Header.Get("To"))
	result.ReplyTo = parseAddressList(msg.Header.Get("Reply-To"))
	result.InReplyTo = msg.Header.Get("In-Reply-To")
	result.References = splitReferences(msg.Header.Get("References"))

	result.Subject = decodeHeader(msg.Header.Get("Subject"))
	if result.Subject == "" {
		result.Subject = defaultSubject
	}

	result.MessageID = msg.Header.Get("Message-Id")
	if result.MessageID == "" {
		result.MessageID = generateMessageID()
	}

	if date, err := msg.Header.Date(); err == nil {
		result.Date = date
	} else {
		result.Date = time.Now().UTC()
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// If content type is unparseable, treat as plain text
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read message body: %w", readErr)
		}
		result.TextBody = string(body)
		return result, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := parseMultipart(msg.Body, boundary, result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
	} else {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read message body: %w", err)
		}
		switch mediaType {
		case "text/plain":
			result.TextBody = string(body)
		case "text/html":
			result.HtmlBody = string(body)
		default:
			slog.Warn("unrecognized top-level content type",
				"content_type", mediaType,
			)
			result.TextBody = string(body)
		}
	}

	return result, nil
}

// parseMultipart processes a multipart MIME message body, extracting text/plain,
// text/html parts and attachments.
func parseMultipart(body io.Reader, boundary string, result *email.Email) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		contentDisposition := part.Header.Get("Content-Disposition")
		isAttachment := strings.HasPrefix(contentDisposition, "attachment")
		isInline := strings.HasPrefix(contentDisposition, "inline")

		// Check for nested multipart
		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBoundary := params["boundary"]
			if nestedBoundary == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := parseMultipart(part, nestedBoundary, result); err != nil {
				slog.Warn("failed to parse nested multipart",
					"error", err,
				)
			}
			continue
		}

		if isAttachment || (isInline && !strings.HasPrefix(mediaType, "text/")) {
			result.Attachments = append(result.Attachments, buildAttachment(part, mediaType, params, isInline))
			continue
		}

		content, err := readPartContent(part)
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		switch mediaType {
		case "text/plain":
			if result.TextBody == "" {
				result.TextBody = string(content)
			}
		case "text/html":
			if result.HtmlBody == "" {
				result.HtmlBody = string(content)
			}
		default:
			// A named part counts as an attachment even without a
			// Content-Disposition header.
			if filename := extractFilename(part, params); filename != "" {
				result.Attachments = append(result.Attachments, email.Attachment{
					Filename:    filename,
					ContentType: mediaType,
					Disposition: email.DispositionAttachment,
					Content:     content,
					Size:        int64(len(content)),
				})
			} else {
				slog.Warn("unrecognized MIME part, skipping",
					"content_type", mediaType,
					"disposition", contentDisposition,
				)
			}
		}
	}

	return nil
}

// buildAttachment assembles an Attachment from a MIME part. A part whose
// content cannot be decoded keeps its slot with empty content and size 0 so
// the attachment count is preserved.
func buildAttachment(part *multipart.Part, mediaType string, params map[string]string, inline bool) email.Attachment {
	att := email.Attachment{
		Filename:    defaultFilename,
		ContentType: defaultContentType,
		Disposition: email.DispositionAttachment,
	}
	if mediaType != "" {
		att.ContentType = mediaType
	}
	if fn := extractFilename(part, params); fn != "" {
		att.Filename = fn
	}
	if inline {
		att.Disposition = email.DispositionInline
		att.ContentID = strings.Trim(part.Header.Get("Content-Id"), "<>")
	}

	content, err := readPartContent(part)
	if err != nil {
		slog.Warn("failed to decode attachment content, keeping empty slot",
			"filename", att.Filename,
			"content_type", att.ContentType,
			"error", err,
		)
		return att
	}
	att.Content = content
	att.Size = int64(len(content))
	return att
}

// readPartContent reads the full content of a MIME part, handling
// Content-Transfer-Encoding (base64, quoted-printable).
func readPartContent(part *multipart.Part) ([]byte, error) {
	encoding := part.Header.Get("Content-Transfer-Encoding")
	encoding = strings.ToLower(strings.TrimSpace(encoding))

	raw, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}

	switch encoding {
	case "base64":
		cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			// Try with RawStdEncoding for unpadded base64
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 content: %w", err)
			}
		}
		return decoded, nil
	default:
		// For "7bit", "8bit", "binary", "quoted-printable", or empty,
		// return raw content. Go's multipart reader handles QP internally.
		return raw, nil
	}
}

// extractFilename extracts the filename from a MIME part, checking both
// Content-Disposition and Content-Type parameters.
func extractFilename(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return decodeHeader(fn)
	}
	// Fall back to Content-Type "name" parameter
	if name, ok := params["name"]; ok && name != "" {
		return decodeHeader(name)
	}
	return ""
}

// parseAddressList splits a comma-separated address list into individual
// addresses. It always returns a materialized (possibly empty) list.
func parseAddressList(raw string) []string {
	if raw == "" {
		return []string{}
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		// Fall back to simple comma split if RFC 5322 parsing fails
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}

// splitReferences splits a References header into individual message ids.
func splitReferences(raw string) []string {
	fields := strings.Fields(raw)
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			result = append(result, f)
		}
	}
	return result
}

// decodeHeader decodes RFC 2047 encoded words (=?UTF-8?B?...?=) in a header
// value, returning the input unchanged when decoding fails.
func decodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// generateMessageID synthesizes a message id for messages that arrive
// without one, so downstream storage always has a stable identifier.
func generateMessageID() string {
	return fmt.Sprintf("<%s@mail-ingest.generated>", uuid.New().String())
}
