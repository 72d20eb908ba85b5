// Package out defines outbound ports (driven ports) for the worker.
// These interfaces represent dependencies the pipeline needs; adapters
// implement them against real services, tests against fakes.
package out

import (
	"context"

	"triage_worker/core/domain"
)

// =============================================================================
// Model adapters
// =============================================================================

// Embedder produces a fixed-length vector for a unit of text. Calls may be
// slow and are the pipeline's main retryable external operation; failures
// leave nothing to roll back.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.Embedding, error)
	ModelVersion() string
}

// AuditFallback is the external, higher-cost classification service invoked
// only for borderline-confidence items. A refusal is a valid outcome, not an
// error; errors are reserved for transport/service failures.
type AuditFallback interface {
	ClassifyOrRefuse(ctx context.Context, thread *domain.EmailThread, topK []domain.CategoryScore) (domain.AuditOutcome, error)
}

// =============================================================================
// Snapshot stores (read-only, loaded once per activation)
// =============================================================================

// TaxonomyStore supplies the versioned set of approved categories. The
// worker only reads the snapshot pinned to the active model version.
type TaxonomyStore interface {
	LoadSnapshot(ctx context.Context, taxonomyVersion, embedModelVersion string) (*domain.TaxonomySnapshot, error)
}

// IntentModelStore supplies the versioned intent model parameters.
type IntentModelStore interface {
	LoadModel(ctx context.Context, version string) (*IntentModel, error)
}

// IntentClass holds the linear head parameters for one intent label.
type IntentClass struct {
	Label      string
	Weights    []float32
	Bias       float64
	Categories []string // matchable category ids; empty means all
}

// IntentModel is an immutable, versioned bundle of intent classes.
type IntentModel struct {
	Version string
	Classes []IntentClass
}

// =============================================================================
// Sinks
// =============================================================================

// EnrichedRepository is the output sink for accepted items. Writes are
// idempotent by (conversation id, model version).
type EnrichedRepository interface {
	Upsert(ctx context.Context, email *domain.EnrichedEmail) error
}

// PoisonSink receives the original raw payload plus a structured failure
// reason for items reaching the poisoned state.
type PoisonSink interface {
	Publish(ctx context.Context, entry *domain.PoisonEntry) error
}
