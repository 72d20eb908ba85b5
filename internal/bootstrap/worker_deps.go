// Package bootstrap wires configuration, infrastructure clients, snapshot
// activation and the pipeline into a runnable worker.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"triage_worker/adapter/out/llm"
	"triage_worker/adapter/out/mongodb"
	"triage_worker/adapter/out/persistence"
	"triage_worker/config"
	"triage_worker/core/service/classification"
	"triage_worker/core/service/pipeline"
	"triage_worker/core/service/preprocess"
	"triage_worker/infra/database"
	"triage_worker/internal/stream"
	"triage_worker/pkg/metrics"
	"triage_worker/pkg/retry"
)

// Dependencies holds every wired component of the worker.
type Dependencies struct {
	Cfg *config.Config
	Log zerolog.Logger

	DB    *pgxpool.Pool
	Redis *redis.Client
	Mongo *mongo.Client

	Stream         *stream.RedisStream
	IngestProducer *stream.IngestProducer

	Stats *metrics.StageRegistry
	Drift *pipeline.DriftMonitor

	Orchestrator *pipeline.Orchestrator
}

// NewDependencies connects the infrastructure, activates the model snapshot
// set (taxonomy + intent model + thresholds) and builds the pipeline.
// Activation is atomic: any missing piece fails startup rather than running
// a partially configured pipeline.
func NewDependencies(cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}

	mongoClient, err := mongodb.NewClient(cfg.MongoDBURL, cfg.MongoDBName)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, nil, fmt.Errorf("mongodb: %w", err)
	}

	cleanup := func() {
		db.Close()
		redisClient.Close()
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer disconnectCancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}

	// Output sink
	enriched := mongodb.NewEnrichedAdapter(mongoClient.Database(cfg.MongoDBName))
	if err := enriched.EnsureIndexes(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("enriched indexes: %w", err)
	}

	// Snapshot activation
	taxonomyStore := persistence.NewTaxonomyAdapter(db)
	snapshot, err := taxonomyStore.LoadSnapshot(ctx, cfg.TaxonomyVersion, cfg.EmbeddingModel)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("taxonomy snapshot %s: %w", cfg.TaxonomyVersion, err)
	}

	intentStore := persistence.NewIntentModelAdapter(db)
	intentModel, err := intentStore.LoadModel(ctx, cfg.IntentModelVersion)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("intent model %s: %w", cfg.IntentModelVersion, err)
	}

	router, err := classification.NewConfidenceRouter(classification.RouterConfig{
		LowThreshold:  cfg.LowThreshold,
		HighThreshold: cfg.HighThreshold,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// Streams
	redisStream := stream.NewRedisStream(redisClient, cfg.ConsumerGroup)

	// Model adapters
	embedder := llm.NewEmbeddingAdapter(llm.EmbeddingConfig{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.EmbeddingModel,
		Timeout:      cfg.EmbedTimeout(),
		MaxInputRune: cfg.EmbedMaxInputRune,
	})

	auditCategories := make([]string, 0, len(snapshot.Approved()))
	for _, cat := range snapshot.Approved() {
		auditCategories = append(auditCategories, cat.ID)
	}
	audit := llm.NewAuditAdapter(llm.AuditConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.AuditModel,
		Timeout:    cfg.AuditTimeout(),
		Categories: auditCategories,
		Intents:    cfg.AuditIntents,
	})

	stats := metrics.NewStageRegistry(1000)
	drift := pipeline.NewDriftMonitor(pipeline.DriftConfig{
		WindowSize:         cfg.DriftWindowSize,
		MinSamples:         cfg.DriftMinSamples,
		BaselineSimilarity: cfg.DriftBaseline,
		MeanDropRatio:      0.9,
		LowSimilarity:      0.7,
		LowRatioLimit:      0.25,
	}, log)

	orchestrator := pipeline.NewOrchestrator(
		pipeline.Config{
			MaxPayloadBytes: cfg.MaxPayloadBytes,
			RetryPolicy: retry.Policy{
				MaxAttempts: cfg.RetryMaxAttempts,
				BaseDelay:   cfg.RetryBaseDelay(),
				MaxDelay:    cfg.RetryMaxDelay(),
				Jitter:      cfg.RetryJitter(),
			},
		},
		pipeline.Deps{
			Normalizer: preprocess.NewNormalizer(preprocess.NormalizerConfig{
				AllowedLanguages: cfg.AllowedLanguages,
				SpamKeywords:     cfg.SpamKeywords,
			}),
			Merger: preprocess.NewThreadMerger(preprocess.MergerConfig{MaxMergedChars: cfg.ThreadMaxChars}),
			Matcher: classification.NewTaxonomyMatcher(snapshot, classification.MatcherConfig{
				Floor: cfg.MatchFloor,
				TopK:  cfg.MatchTopK,
			}),
			Intents:  classification.NewIntentClassifier(intentModel),
			Router:   router,
			Embedder: embedder,
			Audit:    audit,
			Enriched: enriched,
			Poison:   stream.NewPoisonProducer(redisStream),
			Drift:    drift,
			Clock:    retry.SystemClock{},
			Stats:    stats,
			Log:      log,
		},
	)

	log.Info().
		Str("taxonomy_version", cfg.TaxonomyVersion).
		Str("intent_model_version", cfg.IntentModelVersion).
		Str("embedding_model", cfg.EmbeddingModel).
		Int("approved_categories", len(snapshot.Approved())).
		Float64("low_threshold", cfg.LowThreshold).
		Float64("high_threshold", cfg.HighThreshold).
		Msg("snapshot set activated")

	return &Dependencies{
		Cfg:            cfg,
		Log:            log,
		DB:             db,
		Redis:          redisClient,
		Mongo:          mongoClient,
		Stream:         redisStream,
		IngestProducer: stream.NewIngestProducer(redisStream),
		Stats:          stats,
		Drift:          drift,
		Orchestrator:   orchestrator,
	}, cleanup, nil
}
