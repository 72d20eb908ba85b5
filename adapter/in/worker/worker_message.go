// Package worker is the inbound edge of the pipeline: stream entries become
// Messages, a go-pkgz pool fans them out, and each message is acked against
// the source stream only after the pipeline reports a durable outcome.
package worker

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// JobType represents the type of a queue item.
type JobType = string

const (
	// JobClassify runs one conversation through the triage pipeline.
	JobClassify JobType = "triage.classify"
)

// Message is one in-flight queue item. Payload is the raw conversation
// envelope, passed through untouched so poison entries can preserve it.
type Message struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Reclaimed bool            `json:"-"` // taken over from a crashed consumer

	ack func(ctx context.Context) error
}

// WithAck attaches the source-stream acknowledgement. The pool invokes it
// after processing succeeds; a message without one acks as a no-op.
func (m *Message) WithAck(ack func(ctx context.Context) error) *Message {
	m.ack = ack
	return m
}

// Ack acknowledges the message against its source stream.
func (m *Message) Ack(ctx context.Context) error {
	if m.ack == nil {
		return nil
	}
	return m.ack(ctx)
}
