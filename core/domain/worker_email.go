package domain

import (
	"time"
)

// AttachmentMeta describes an attachment without carrying its content.
type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// RawMessage is one email message as delivered by the upstream exporter.
// Immutable once received; the orchestrator owns it for the duration of
// processing and preserves it verbatim for poison provenance.
type RawMessage struct {
	MessageID   string           `json:"message_id"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	Sender      string           `json:"sender"`
	Recipients  []string         `json:"recipients"`
	CcAddresses []string         `json:"cc_addresses,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Language    string           `json:"language"`
	Attachments []AttachmentMeta `json:"attachments,omitempty"`
}

// ConversationPayload is the ingest envelope: every message of one
// conversation, exported together by the upstream system.
type ConversationPayload struct {
	ConversationID string       `json:"conversation_id"`
	TenantID       string       `json:"tenant_id,omitempty"`
	Messages       []RawMessage `json:"messages"`
}

// NormalizedEmail is a RawMessage after validation and cleaning. The stored
// original text is never mutated; CleanBody carries the matching-oriented
// cleaned form.
type NormalizedEmail struct {
	MessageID   string
	Subject     string
	CleanBody   string // quoted replies, signatures and footers stripped
	Sender      string
	Recipients  []string
	Timestamp   time.Time
	Language    string
	Attachments []AttachmentMeta

	EmptyBody bool // CleanBody reduced to nothing after cleaning
	SpamFlag  bool // advisory keyword hit, never causes rejection by itself
}

// EmailThread is the merged, deduplicated conversation unit fed to the
// embedder. Messages are time-ordered and each content hash appears once.
type EmailThread struct {
	ConversationID string
	TenantID       string
	Subject        string // subject of the earliest surviving message
	MergedBody     string // chronological concat of surviving clean bodies
	Language       string
	Messages       []NormalizedEmail // survivors, ascending by timestamp
	DroppedCount   int               // duplicates removed during merge
	Truncated      bool              // merged body hit the length budget

	// Degenerate threads carry no classifiable conversation signal and are
	// always poisoned regardless of downstream scores.
	Degenerate bool

	// Consistency is a [0,1] heuristic of how coherent the thread is,
	// derived from surviving message length variance. Advisory only.
	Consistency float64

	SpamFlag bool // any surviving message carried the spam keyword flag
}
