// Package notify sends ingestion notifications to a Telegram chat.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coldpath/mail-ingest/internal/email"
)

// requestTimeout bounds a single bot API call.
const requestTimeout = 30 * time.Second

// TelegramConfig holds the bot credentials and endpoint.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	// APIURL is the bot API base, normally https://api.telegram.org.
	APIURL string
}

// TelegramNotifier renders a summary of an ingested message and delivers it
// via the bot sendMessage endpoint.
type TelegramNotifier struct {
	cfg    TelegramConfig
	client *http.Client
}

// apiResponse is the bot API envelope; Ok false means the call failed even
// on HTTP 200.
type apiResponse struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramNotifier creates a notifier with the given configuration.
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Notify formats and sends the new-mail summary for one ingested message.
func (n *TelegramNotifier) Notify(ctx context.Context, msg *email.Email, mailbox string) error {
	return n.sendMessage(ctx, FormatMessage(msg, mailbox))
}

// FormatMessage builds the HTML notification text: a header block with
// mailbox, recipients, sender, subject and timestamp, followed by a body
// preview and an attachment count when attachments exist.
func FormatMessage(msg *email.Email, mailbox string) string {
	var b strings.Builder

	b.WriteString("<b>\U0001F4E7 New mail</b>\n")
	b.WriteString("━━━━━━━━━━\n")
	fmt.Fprintf(&b, "\U0001F4EC Mailbox: <code>%s</code>\n", mailbox)
	fmt.Fprintf(&b, "\U0001F4E8 To: <code>%s</code>\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "\U0001F464 From: <code>%s</code>\n", msg.From)
	fmt.Fprintf(&b, "\U0001F4CB Subject: <code>%s</code>\n", msg.Subject)
	fmt.Fprintf(&b, "⏰ Time: <code>%s</code>\n", msg.Date.Format("2006-01-02 15:04:05"))
	b.WriteString("\n")

	b.WriteString(bodyPreview(msg))

	if len(msg.Attachments) > 0 {
		fmt.Fprintf(&b, "\n\n\U0001F4CE Attachments: <code>%d</code>", len(msg.Attachments))
	}

	return b.String()
}

// bodyPreview selects the preview: sanitized and truncated HTML when an
// HTML body exists, else the plain text in a preformatted block, else a
// placeholder.
func bodyPreview(msg *email.Email) string {
	if msg.HtmlBody != "" {
		return TruncateHTML(SanitizeHTML(msg.HtmlBody), defaultMaxPreviewLength)
	}
	if msg.TextBody != "" {
		return "<pre>" + msg.TextBody + "</pre>"
	}
	return "<pre>(no content)</pre>"
}

// sendMessage posts to the bot API and decodes the response envelope.
func (n *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage?disable_web_page_preview=true",
		strings.TrimRight(n.cfg.APIURL, "/"), n.cfg.BotToken)

	form := url.Values{
		"chat_id":    {n.cfg.ChatID},
		"text":       {text},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call bot API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read bot API response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bot API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to decode bot API response: %w", err)
	}
	if !apiResp.Ok {
		return fmt.Errorf("bot API rejected message: %s", apiResp.Description)
	}
	return nil
}
