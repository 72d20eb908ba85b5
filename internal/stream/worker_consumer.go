package stream

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"triage_worker/adapter/in/worker"
)

// ConsumerConfig tunes the ingest consumer loops.
type ConsumerConfig struct {
	FetchCount   int64         // entries per XReadGroup call
	BlockTime    time.Duration // XReadGroup block duration
	ReclaimIdle  time.Duration // pending entries older than this are reclaimed
	ReclaimEvery time.Duration // reclaim loop interval
}

// DefaultConsumerConfig returns the documented defaults.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		FetchCount:   10,
		BlockTime:    5 * time.Second,
		ReclaimIdle:  2 * time.Minute,
		ReclaimEvery: 30 * time.Second,
	}
}

// Consumer reads the ingest stream and submits items to the worker pool.
// Nothing is acked here: each message carries an ack closure the pool
// invokes once the pipeline reaches a durable outcome.
type Consumer struct {
	stream *RedisStream
	pool   *worker.Pool
	name   string
	cfg    ConsumerConfig
	log    zerolog.Logger
}

func NewConsumer(stream *RedisStream, pool *worker.Pool, name string, cfg ConsumerConfig, log zerolog.Logger) *Consumer {
	if cfg.FetchCount <= 0 {
		cfg = DefaultConsumerConfig()
	}
	return &Consumer{
		stream: stream,
		pool:   pool,
		name:   name,
		cfg:    cfg,
		log:    log.With().Str("component", "ingest_consumer").Logger(),
	}
}

// Start creates the consumer group and launches the fetch and reclaim loops.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.stream.CreateGroup(ctx, StreamIngest); err != nil {
		return err
	}
	go c.fetchLoop(ctx)
	go c.reclaimLoop(ctx)
	return nil
}

func (c *Consumer) fetchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries, err := c.stream.Fetch(ctx, StreamIngest, c.name, c.cfg.FetchCount, c.cfg.BlockTime)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("stream read error")
			time.Sleep(time.Second)
			continue
		}
		c.submit(ctx, entries, false)
	}
}

// reclaimLoop takes over entries left pending by crashed consumers, so every
// delivered item is eventually processed (at-least-once).
func (c *Consumer) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ReclaimEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		entries, err := c.stream.Reclaim(ctx, StreamIngest, c.name, c.cfg.ReclaimIdle, c.cfg.FetchCount)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("reclaim error")
			continue
		}
		if len(entries) > 0 {
			c.log.Info().Int("count", len(entries)).Msg("reclaimed pending entries")
		}
		c.submit(ctx, entries, true)
	}
}

func (c *Consumer) submit(ctx context.Context, entries []Entry, reclaimed bool) {
	for _, entry := range entries {
		var item Item
		if err := json.Unmarshal(entry.Data, &item); err != nil {
			// Unreadable entries can never be processed; ack them away with
			// a log instead of redelivering forever.
			c.log.Error().Err(err).Str("entry_id", entry.ID).Msg("dropping undecodable entry")
			if ackErr := c.stream.Ack(ctx, StreamIngest, entry.ID); ackErr != nil {
				c.log.Warn().Err(ackErr).Str("entry_id", entry.ID).Msg("ack failed")
			}
			continue
		}

		entryID := entry.ID
		msg := (&worker.Message{
			ID:        item.ID,
			Type:      item.Type,
			Payload:   item.Payload,
			CreatedAt: item.CreatedAt,
			Reclaimed: reclaimed,
		}).WithAck(func(ctx context.Context) error {
			return c.stream.Ack(ctx, StreamIngest, entryID)
		})

		if !c.pool.Submit(msg) {
			// Pool stopped; the entry stays pending and will be reclaimed.
			return
		}
	}
}
