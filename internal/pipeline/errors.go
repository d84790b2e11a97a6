package pipeline

import "fmt"

// ParseError marks a structural MIME failure. Fatal: the message is
// rejected and nothing is persisted.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse failed: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// AttachmentStoreError marks a failed attachment write. Fatal: no partial
// attachment sets are persisted, though objects written before the failure
// are left in place.
type AttachmentStoreError struct {
	Err error
}

func (e *AttachmentStoreError) Error() string { return fmt.Sprintf("attachment store failed: %v", e.Err) }
func (e *AttachmentStoreError) Unwrap() error { return e.Err }

// PersistenceError marks a failed database insert. Fatal: a message is
// never considered ingested if it cannot be durably recorded.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence failed: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ForwardError marks a failed forward. Non-fatal: logged, the stored
// record stands, and later stages still run.
type ForwardError struct {
	Err error
}

func (e *ForwardError) Error() string { return fmt.Sprintf("forward failed: %v", e.Err) }
func (e *ForwardError) Unwrap() error { return e.Err }

// NotificationError marks a failed notification. Non-fatal: logged only.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string { return fmt.Sprintf("notification failed: %v", e.Err) }
func (e *NotificationError) Unwrap() error { return e.Err }
