package stream

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"triage_worker/core/domain"
)

// Item is the envelope carried on the ingest stream.
type Item struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ItemTypeClassify is the only item type the triage worker consumes.
const ItemTypeClassify = "triage.classify"

// IngestProducer enqueues conversation payloads for classification. Used by
// the enqueue endpoint and by operational re-drive tooling.
type IngestProducer struct {
	stream *RedisStream
}

func NewIngestProducer(stream *RedisStream) *IngestProducer {
	return &IngestProducer{stream: stream}
}

// EnqueueConversation publishes one raw conversation envelope and returns
// the assigned item id.
func (p *IngestProducer) EnqueueConversation(ctx context.Context, payload []byte) (string, error) {
	item := &Item{
		ID:        uuid.New().String(),
		Type:      ItemTypeClassify,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := p.stream.Publish(ctx, StreamIngest, item); err != nil {
		return "", err
	}
	return item.ID, nil
}

// PoisonProducer implements out.PoisonSink on the poison stream. Entries
// carry the untouched original payload plus the structured failure reason.
type PoisonProducer struct {
	stream *RedisStream
}

func NewPoisonProducer(stream *RedisStream) *PoisonProducer {
	return &PoisonProducer{stream: stream}
}

func (p *PoisonProducer) Publish(ctx context.Context, entry *domain.PoisonEntry) error {
	_, err := p.stream.Publish(ctx, StreamPoison, entry)
	return err
}
