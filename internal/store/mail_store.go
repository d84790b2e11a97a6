package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/coldpath/mail-ingest/internal/email"
)

// Target table, created by the host's migrations:
//
//	CREATE TABLE emails (
//	    id          TEXT PRIMARY KEY,
//	    mailbox     TEXT NOT NULL,
//	    "from"      TEXT NOT NULL,
//	    "to"        TEXT[] NOT NULL,
//	    subject     TEXT NOT NULL,
//	    text        TEXT NOT NULL,
//	    html        TEXT,
//	    message_id  TEXT NOT NULL,
//	    in_reply_to TEXT,
//	    "references" TEXT[] NOT NULL,
//	    headers     JSONB NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
// This shape is the durable contract the admin API reads against; changing
// it requires a migration.
const insertEmail = `
    INSERT INTO emails (id, mailbox, "from", "to", subject, text, html, message_id, in_reply_to, "references", headers, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// MailStore writes mail records as single-row inserts. Duplicate message
// ids are not deduplicated at this layer; re-ingesting the same raw bytes
// produces a second distinct row.
type MailStore struct {
	db *sql.DB
}

// NewMailStore creates a MailStore over an open connection pool.
func NewMailStore(db *sql.DB) *MailStore {
	return &MailStore{db: db}
}

// Insert normalizes and writes one mail record. It fails on constraint
// violation or connection failure and performs no retries.
func (s *MailStore) Insert(ctx context.Context, rec *email.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	msg := rec.Email

	// Recipient and reference lists are always materialized, never null.
	to := msg.To
	if to == nil {
		to = []string{}
	}
	references := msg.References
	if references == nil {
		references = []string{}
	}

	headers, err := json.Marshal(msg.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}

	// html is NULL when absent, never an empty string; text is the
	// opposite: always a string, possibly empty.
	html := sql.NullString{String: msg.HtmlBody, Valid: msg.HtmlBody != ""}
	inReplyTo := sql.NullString{String: msg.InReplyTo, Valid: msg.InReplyTo != ""}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, insertEmail,
		rec.ID,
		rec.Mailbox,
		msg.From,
		pq.Array(to),
		msg.Subject,
		msg.TextBody,
		html,
		msg.MessageID,
		inReplyTo,
		pq.Array(references),
		headers,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert mail record: %w", err)
	}

	return nil
}
