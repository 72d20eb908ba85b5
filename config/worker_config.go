package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"triage_worker/pkg/apperr"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "triage"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// OpenAI
	OpenAIAPIKey      string
	EmbeddingModel    string
	AuditModel        string
	EmbedTimeoutSec   int
	AuditTimeoutSec   int
	EmbedMaxInputRune int

	// Model pins (activation set)
	TaxonomyVersion    string
	IntentModelVersion string

	// Routing thresholds and matcher tuning
	LowThreshold  float64
	HighThreshold float64
	MatchFloor    float64
	MatchTopK     int

	// Normalization
	AllowedLanguages []string
	SpamKeywords     []string
	MaxPayloadBytes  int
	ThreadMaxChars   int

	// Drift monitor
	DriftWindowSize int
	DriftMinSamples int
	DriftBaseline   float64

	// Retry
	RetryMaxAttempts  int
	RetryBaseDelayMS  int
	RetryMaxDelayMS   int
	RetryJitterMS     int

	// Worker
	WorkerID         string
	Workers          int
	JobTimeoutSec    int
	ConsumerGroup    string
	FetchCount       int
	BlockMS          int
	ReclaimIdleSec   int
	ReclaimEverySec  int

	// Audit fallback enums offered to the external model
	AuditIntents []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "triage"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// OpenAI
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		AuditModel:        getEnv("AUDIT_MODEL", "gpt-4o-mini"),
		EmbedTimeoutSec:   getEnvInt("EMBED_TIMEOUT_SEC", 10),
		AuditTimeoutSec:   getEnvInt("AUDIT_TIMEOUT_SEC", 20),
		EmbedMaxInputRune: getEnvInt("EMBED_MAX_INPUT_RUNE", 32000),

		// Model pins
		TaxonomyVersion:    getEnv("TAXONOMY_VERSION", ""),
		IntentModelVersion: getEnv("INTENT_MODEL_VERSION", ""),

		// Routing
		LowThreshold:  getEnvFloat("LOW_THRESHOLD", 0.55),
		HighThreshold: getEnvFloat("HIGH_THRESHOLD", 0.80),
		MatchFloor:    getEnvFloat("MATCH_FLOOR", 0.55),
		MatchTopK:     getEnvInt("MATCH_TOP_K", 3),

		// Normalization
		AllowedLanguages: getEnvSlice("ALLOWED_LANGUAGES", []string{"en", "fr", "de", "es"}),
		SpamKeywords:     getEnvSlice("SPAM_KEYWORDS", []string{"lottery winner", "crypto giveaway", "wire transfer urgently"}),
		MaxPayloadBytes:  getEnvInt("MAX_PAYLOAD_BYTES", 1<<20),
		ThreadMaxChars:   getEnvInt("THREAD_MAX_CHARS", 16384),

		// Drift
		DriftWindowSize: getEnvInt("DRIFT_WINDOW_SIZE", 500),
		DriftMinSamples: getEnvInt("DRIFT_MIN_SAMPLES", 100),
		DriftBaseline:   getEnvFloat("DRIFT_BASELINE_SIMILARITY", 0.82),

		// Retry
		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelayMS: getEnvInt("RETRY_BASE_DELAY_MS", 1000),
		RetryMaxDelayMS:  getEnvInt("RETRY_MAX_DELAY_MS", 30000),
		RetryJitterMS:    getEnvInt("RETRY_JITTER_MS", 500),

		// Worker
		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		Workers:         getEnvInt("WORKERS", 8),
		JobTimeoutSec:   getEnvInt("JOB_TIMEOUT_SEC", 120),
		ConsumerGroup:   getEnv("CONSUMER_GROUP", "triage"),
		FetchCount:      getEnvInt("CONSUMER_FETCH_COUNT", 10),
		BlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ReclaimIdleSec:  getEnvInt("RECLAIM_IDLE_SEC", 120),
		ReclaimEverySec: getEnvInt("RECLAIM_EVERY_SEC", 30),

		AuditIntents: getEnvSlice("AUDIT_INTENTS", nil),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would misroute every item. Runs once
// at startup; the worker refuses to activate on failure.
func (c *Config) Validate() error {
	if c.LowThreshold < 0 || c.HighThreshold > 1 || c.LowThreshold > c.HighThreshold {
		return apperr.ConfigError("thresholds must satisfy 0 <= LOW_THRESHOLD <= HIGH_THRESHOLD <= 1").
			WithDetail("low", c.LowThreshold).
			WithDetail("high", c.HighThreshold)
	}
	if c.MatchFloor < 0 || c.MatchFloor > 1 {
		return apperr.ConfigError("MATCH_FLOOR must be in [0,1]").WithDetail("floor", c.MatchFloor)
	}
	if c.TaxonomyVersion == "" {
		return apperr.ConfigError("TAXONOMY_VERSION is required")
	}
	if c.IntentModelVersion == "" {
		return apperr.ConfigError("INTENT_MODEL_VERSION is required")
	}
	if len(c.AllowedLanguages) == 0 {
		return apperr.ConfigError("ALLOWED_LANGUAGES must not be empty")
	}
	if c.MaxPayloadBytes <= 0 || c.ThreadMaxChars <= 0 {
		return apperr.ConfigError("payload and thread size limits must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return apperr.ConfigError("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Workers < 1 {
		return apperr.ConfigError("WORKERS must be at least 1")
	}
	return nil
}

// Durations derived from the integer env values.

func (c *Config) EmbedTimeout() time.Duration  { return time.Duration(c.EmbedTimeoutSec) * time.Second }
func (c *Config) AuditTimeout() time.Duration  { return time.Duration(c.AuditTimeoutSec) * time.Second }
func (c *Config) JobTimeout() time.Duration    { return time.Duration(c.JobTimeoutSec) * time.Second }
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}
func (c *Config) RetryJitter() time.Duration { return time.Duration(c.RetryJitterMS) * time.Millisecond }
func (c *Config) BlockTime() time.Duration   { return time.Duration(c.BlockMS) * time.Millisecond }
func (c *Config) ReclaimIdle() time.Duration { return time.Duration(c.ReclaimIdleSec) * time.Second }
func (c *Config) ReclaimEvery() time.Duration {
	return time.Duration(c.ReclaimEverySec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
