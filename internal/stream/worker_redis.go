// Package stream provides the Redis Streams transport: the ingest source the
// worker consumes with a consumer group, and the poison stream it publishes
// to. Messages are acked only after the pipeline reaches a durable outcome;
// unacked entries are reclaimed from crashed consumers via XAutoClaim.
package stream

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	StreamIngest = "triage:ingest"
	StreamPoison = "triage:poison"
)

type RedisStream struct {
	client *redis.Client
	group  string
}

func NewRedisStream(client *redis.Client, group string) *RedisStream {
	return &RedisStream{
		client: client,
		group:  group,
	}
}

func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": jsonData},
	}).Result()
}

// Entry is one raw stream entry awaiting processing.
type Entry struct {
	ID   string
	Data []byte
}

// Fetch reads up to count new entries for this consumer, blocking up to
// block. Entries are NOT acked; the caller acks after a durable outcome.
func (s *RedisStream) Fetch(ctx context.Context, stream, consumer string, count int64, block time.Duration) ([]Entry, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return flatten(streams), nil
}

// Reclaim takes over entries that have been pending longer than minIdle,
// typically because their consumer crashed mid-item.
func (s *RedisStream) Reclaim(ctx context.Context, stream, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	messages, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    s.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(messages))
	for _, msg := range messages {
		if data, ok := msg.Values["data"].(string); ok {
			entries = append(entries, Entry{ID: msg.ID, Data: []byte(data)})
		}
	}
	return entries, nil
}

func (s *RedisStream) Ack(ctx context.Context, stream, id string) error {
	return s.client.XAck(ctx, stream, s.group, id).Err()
}

func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}

func flatten(streams []redis.XStream) []Entry {
	var entries []Entry
	for _, str := range streams {
		for _, msg := range str.Messages {
			if data, ok := msg.Values["data"].(string); ok {
				entries = append(entries, Entry{ID: msg.ID, Data: []byte(data)})
			}
		}
	}
	return entries
}
