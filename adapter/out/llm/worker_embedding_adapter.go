// Package llm implements the model-facing outbound ports against the OpenAI
// API, with circuit breakers guarding both the embedder and the audit
// fallback.
package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
)

// EmbeddingConfig holds the embedder adapter configuration.
type EmbeddingConfig struct {
	APIKey       string
	Model        string // embedding model name, also the version pin
	Timeout      time.Duration
	MaxInputRune int // inputs longer than this are rejected before the call
}

// EmbeddingAdapter implements out.Embedder over the OpenAI embeddings API.
type EmbeddingAdapter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	maxRune int
	cb      *gobreaker.CircuitBreaker
}

// NewEmbeddingAdapter creates the adapter.
func NewEmbeddingAdapter(cfg EmbeddingConfig) *EmbeddingAdapter {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxInputRune <= 0 {
		cfg.MaxInputRune = 32000
	}
	return &EmbeddingAdapter{
		client:  openai.NewClient(cfg.APIKey),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		maxRune: cfg.MaxInputRune,
		cb:      newBreaker("embedder"),
	}
}

// ModelVersion returns the version pin carried on every embedding.
func (a *EmbeddingAdapter) ModelVersion() string { return a.model }

// Embed produces one vector for the text. Timeouts and provider outages map
// to transient errors; oversized input is permanent.
func (a *EmbeddingAdapter) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	if len([]rune(text)) > a.maxRune {
		return domain.Embedding{}, apperr.EmbeddingRejected("input_too_long", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.cb.Execute(func() (any, error) {
		return a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(a.model),
			Input: []string{text},
		})
	})
	if err != nil {
		return domain.Embedding{}, classifyEmbedError(err)
	}

	resp := result.(openai.EmbeddingResponse)
	if len(resp.Data) == 0 {
		return domain.Embedding{}, apperr.EmbeddingFailed("empty_response", nil)
	}
	return domain.Embedding{
		Vector:       resp.Data[0].Embedding,
		ModelVersion: a.model,
	}, nil
}

func classifyEmbedError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.EmbeddingFailed("timeout", err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperr.EmbeddingFailed("circuit_open", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return apperr.EmbeddingRejected("rejected_input", err)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests,
			apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return apperr.EmbeddingFailed("provider_unavailable", err)
		}
	}
	return apperr.EmbeddingFailed("request_failed", err)
}

// newBreaker builds the breaker both adapters share the settings of: trip on
// sustained consecutive failures or a high failure ratio, recover after 30s.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
	})
}
