package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"triage_worker/adapter/in/worker"
	"triage_worker/core/domain"
	"triage_worker/core/service/pipeline"
	"triage_worker/infra/database"
	"triage_worker/internal/stream"
	"triage_worker/pkg/metrics"
)

// StatsHandler exposes worker internals: pool counters, per-stage latency
// percentiles, drift state, connection pool stats and queue depth. Also hosts
// the manual enqueue endpoint used for re-drives and smoke tests.
type StatsHandler struct {
	pool     *worker.Pool
	db       *pgxpool.Pool
	rdb      *redis.Client
	stats    *metrics.StageRegistry
	drift    *pipeline.DriftMonitor
	redis    *stream.RedisStream
	producer *stream.IngestProducer
}

func NewStatsHandler(pool *worker.Pool, db *pgxpool.Pool, rdb *redis.Client, stats *metrics.StageRegistry, drift *pipeline.DriftMonitor, redisStream *stream.RedisStream, producer *stream.IngestProducer) *StatsHandler {
	return &StatsHandler{
		pool:     pool,
		db:       db,
		rdb:      rdb,
		stats:    stats,
		drift:    drift,
		redis:    redisStream,
		producer: producer,
	}
}

func (h *StatsHandler) Register(app *fiber.App) {
	app.Get("/stats", h.Stats)
	app.Post("/queue/conversations", h.Enqueue)
}

// Stats returns the live worker statistics.
func (h *StatsHandler) Stats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	stages := make(map[string]any)
	for name, stat := range h.stats.AllStats() {
		stages[name] = stat.ToMap()
	}

	pending := int64(-1)
	if count, err := h.redis.Pending(ctx, stream.StreamIngest); err == nil {
		pending = count
	}

	connections := fiber.Map{}
	if h.db != nil {
		connections["postgres"] = database.GetPoolStats(h.db)
	}
	if h.rdb != nil {
		connections["redis"] = database.GetRedisStats(h.rdb)
	}

	return c.JSON(fiber.Map{
		"pool":          h.pool.GetMetrics(),
		"stages":        stages,
		"drift":         h.drift.State(),
		"connections":   connections,
		"queue_pending": pending,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// Enqueue publishes one conversation envelope to the ingest stream. The
// payload is validated by the pipeline, not here; this endpoint only checks
// that it is JSON at all.
func (h *StatsHandler) Enqueue(c *fiber.Ctx) error {
	body := c.Body()
	if !json.Valid(body) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be a JSON conversation envelope",
		})
	}

	var envelope domain.ConversationPayload
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ConversationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "conversation_id is required",
		})
	}

	itemID, err := h.producer.EnqueueConversation(c.Context(), body)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "failed to enqueue conversation",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"item_id":         itemID,
		"conversation_id": envelope.ConversationID,
	})
}
