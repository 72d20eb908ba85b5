package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/core/service/classification"
	"triage_worker/core/service/preprocess"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/metrics"
	"triage_worker/pkg/retry"
)

// Config holds orchestrator limits and retry tuning.
type Config struct {
	// MaxPayloadBytes rejects oversized envelopes before decoding work.
	MaxPayloadBytes int
	// RetryPolicy bounds retries of transient embedder and audit calls.
	RetryPolicy retry.Policy
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxPayloadBytes: 1 << 20,
		RetryPolicy:     retry.DefaultPolicy(),
	}
}

// Deps are the orchestrator's collaborators. Services are the in-process
// pipeline stages; ports are external adapters.
type Deps struct {
	Normalizer *preprocess.Normalizer
	Merger     *preprocess.ThreadMerger
	Matcher    *classification.TaxonomyMatcher
	Intents    *classification.IntentClassifier
	Router     *classification.ConfidenceRouter

	Embedder out.Embedder
	Audit    out.AuditFallback
	Enriched out.EnrichedRepository
	Poison   out.PoisonSink

	Drift *DriftMonitor
	Clock retry.Clock
	Stats *metrics.StageRegistry
	Log   zerolog.Logger
}

// Outcome is the durable result of one processed item. Exactly one of
// Enriched or Poison is set; the consumer acks only after receiving one.
type Outcome struct {
	ItemID   string
	Decision domain.Decision
	Enriched *domain.EnrichedEmail
	Poison   *domain.PoisonEntry
	Audited  bool
}

// Orchestrator runs one item through normalize → merge → embed → match →
// intent → route → (audit), ending in exactly one durable outcome.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultConfig().MaxPayloadBytes
	}
	if deps.Clock == nil {
		deps.Clock = retry.SystemClock{}
	}
	deps.Log = deps.Log.With().Str("component", "orchestrator").Logger()
	return &Orchestrator{cfg: cfg, deps: deps}
}

// ProcessItem processes one queue item to a durable outcome. A returned
// error means no durable outcome exists yet (sink unreachable or shutdown);
// the caller must not ack, so redelivery retries the item.
func (o *Orchestrator) ProcessItem(ctx context.Context, itemID string, payload []byte) (*Outcome, error) {
	log := o.deps.Log.With().Str("item_id", itemID).Logger()

	envelope, err := o.decodeEnvelope(payload)
	if err != nil {
		return o.poison(ctx, log, itemID, "", payload, 1, err)
	}
	log = log.With().Str("conversation_id", envelope.ConversationID).Logger()

	normalized, err := o.normalize(envelope)
	if err != nil {
		return o.poison(ctx, log, itemID, envelope.ConversationID, payload, 1, err)
	}

	start := o.deps.Clock.Now()
	thread := o.deps.Merger.Merge(envelope.ConversationID, envelope.TenantID, normalized)
	o.record(apperr.StageMerge, start)
	if thread.Degenerate {
		return o.poison(ctx, log, itemID, envelope.ConversationID, payload, 1,
			apperr.DegenerateThread(envelope.ConversationID))
	}

	embedding, attempts, err := o.embed(ctx, thread)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return o.poison(ctx, log, itemID, envelope.ConversationID, payload, attempts, err)
	}

	start = o.deps.Clock.Now()
	match, err := o.deps.Matcher.Match(embedding)
	o.record(apperr.StageMatch, start)
	if err != nil {
		return o.poison(ctx, log, itemID, envelope.ConversationID, payload, attempts, err)
	}
	if o.deps.Drift != nil {
		o.deps.Drift.Record(match.Similarity)
	}

	start = o.deps.Clock.Now()
	intent, err := o.deps.Intents.Classify(embedding, match.CategoryID)
	o.record(apperr.StageIntent, start)
	if err != nil {
		return o.poison(ctx, log, itemID, envelope.ConversationID, payload, attempts, err)
	}

	decision := o.deps.Router.Route(thread, match, intent)
	result := o.deps.Router.Result(match, intent, decision)

	switch decision {
	case domain.DecisionAccepted:
		return o.accept(ctx, log, itemID, thread, result, match.TaxonomyVersion, attempts, false, "")

	case domain.DecisionPendingAudit:
		return o.resolveAudit(ctx, log, itemID, payload, thread, result, match.TaxonomyVersion, attempts)

	default:
		return o.poison(ctx, log, itemID, envelope.ConversationID, payload, attempts,
			apperr.LowConfidence(result.CombinedConfidence))
	}
}

func (o *Orchestrator) decodeEnvelope(payload []byte) (*domain.ConversationPayload, error) {
	if o.cfg.MaxPayloadBytes > 0 && len(payload) > o.cfg.MaxPayloadBytes {
		return nil, apperr.ValidationFailed("payload_size", "envelope exceeds max payload size").
			WithDetail("size_bytes", len(payload)).
			WithDetail("limit_bytes", o.cfg.MaxPayloadBytes)
	}
	var envelope domain.ConversationPayload
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, apperr.ValidationFailed("malformed_payload", "envelope is not valid JSON").WithError(err)
	}
	if strings.TrimSpace(envelope.ConversationID) == "" {
		return nil, apperr.MissingField("conversation_id")
	}
	if len(envelope.Messages) == 0 {
		return nil, apperr.MissingField("messages")
	}
	return &envelope, nil
}

func (o *Orchestrator) normalize(envelope *domain.ConversationPayload) ([]domain.NormalizedEmail, error) {
	start := o.deps.Clock.Now()
	defer o.record(apperr.StageNormalize, start)

	normalized := make([]domain.NormalizedEmail, 0, len(envelope.Messages))
	for i := range envelope.Messages {
		msg, err := o.deps.Normalizer.Normalize(&envelope.Messages[i])
		if err != nil {
			return nil, apperr.AsAppError(err).WithDetail("message_id", envelope.Messages[i].MessageID)
		}
		normalized = append(normalized, *msg)
	}
	return normalized, nil
}

func (o *Orchestrator) embed(ctx context.Context, thread *domain.EmailThread) (domain.Embedding, int, error) {
	var embedding domain.Embedding
	attempts := 0
	err := retry.Do(ctx, o.deps.Clock, o.cfg.RetryPolicy, apperr.IsTransient, func(ctx context.Context) error {
		attempts++
		start := o.deps.Clock.Now()
		emb, err := o.deps.Embedder.Embed(ctx, embedInput(thread))
		o.record(apperr.StageEmbed, start)
		if err != nil {
			return err
		}
		embedding = emb
		return nil
	})
	return embedding, attempts, err
}

// embedInput is the text the embedder sees: subject plus merged body.
func embedInput(thread *domain.EmailThread) string {
	if thread.Subject == "" {
		return thread.MergedBody
	}
	return thread.Subject + "\n\n" + thread.MergedBody
}

// resolveAudit sends a borderline item to the audit fallback. A successful
// verdict accepts the item with audited provenance; refusal or exhausted
// failure poisons it.
func (o *Orchestrator) resolveAudit(ctx context.Context, log zerolog.Logger, itemID string, payload []byte, thread *domain.EmailThread, result domain.ClassificationResult, taxonomyVersion string, attempts int) (*Outcome, error) {
	var outcome domain.AuditOutcome
	auditAttempts := 0
	err := retry.Do(ctx, o.deps.Clock, o.cfg.RetryPolicy, apperr.IsTransient, func(ctx context.Context) error {
		auditAttempts++
		start := o.deps.Clock.Now()
		verdict, err := o.deps.Audit.ClassifyOrRefuse(ctx, thread, result.TopK)
		o.record(apperr.StageAudit, start)
		if err != nil {
			return err
		}
		outcome = verdict
		return nil
	})
	totalAttempts := attempts + auditAttempts
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return o.poison(ctx, log, itemID, thread.ConversationID, payload, totalAttempts, err)
	}
	if outcome.Refused {
		return o.poison(ctx, log, itemID, thread.ConversationID, payload, totalAttempts,
			apperr.AuditFallbackRefused(outcome.Reason))
	}

	if outcome.Label != "" {
		result.CategoryID = outcome.Label
		result.CategoryLabel = outcome.Label
	}
	if outcome.Intent != "" {
		result.Intent = outcome.Intent
	}
	result.IntentConfidence = outcome.Confidence
	result.CombinedConfidence = outcome.Confidence
	result.Decision = domain.DecisionAccepted

	return o.accept(ctx, log, itemID, thread, result, taxonomyVersion, totalAttempts, true, outcome.Reason)
}

func (o *Orchestrator) accept(ctx context.Context, log zerolog.Logger, itemID string, thread *domain.EmailThread, result domain.ClassificationResult, taxonomyVersion string, attempts int, audited bool, auditReason string) (*Outcome, error) {
	enriched := &domain.EnrichedEmail{
		ConversationID: thread.ConversationID,
		TenantID:       thread.TenantID,
		Subject:        thread.Subject,
		MergedBody:     thread.MergedBody,
		Language:       thread.Language,
		SpamFlag:       thread.SpamFlag,
		Result:         result,
		Provenance: domain.Provenance{
			ModelVersion:    o.deps.Embedder.ModelVersion(),
			TaxonomyVersion: taxonomyVersion,
			IntentVersion:   o.deps.Intents.ModelVersion(),
			ProcessedAt:     o.deps.Clock.Now().UTC(),
			Audited:         audited,
			AuditReason:     auditReason,
			Attempts:        attempts,
			Consistency:     thread.Consistency,
		},
	}

	start := o.deps.Clock.Now()
	err := o.deps.Enriched.Upsert(ctx, enriched)
	o.record(apperr.StageSink, start)
	if err != nil {
		// No durable outcome: leave the item unacked for redelivery.
		return nil, apperr.SinkError("enriched_emails", err)
	}

	log.Info().
		Str("category", result.CategoryID).
		Str("intent", result.Intent).
		Float64("combined_confidence", result.CombinedConfidence).
		Bool("audited", audited).
		Msg("item accepted")

	return &Outcome{
		ItemID:   itemID,
		Decision: domain.DecisionAccepted,
		Enriched: enriched,
		Audited:  audited,
	}, nil
}

// poison publishes a poison entry carrying the untouched original payload.
// A publish failure returns an error so the item stays unacked.
func (o *Orchestrator) poison(ctx context.Context, log zerolog.Logger, itemID, conversationID string, payload []byte, attempts int, cause error) (*Outcome, error) {
	ae := apperr.AsAppError(cause)
	entry := &domain.PoisonEntry{
		ItemID:         itemID,
		ConversationID: conversationID,
		Stage:          ae.Stage,
		Code:           ae.Code,
		Reason:         ae.Reason(),
		Message:        ae.Message,
		Attempts:       attempts,
		RawPayload:     payload,
		FailedAt:       o.deps.Clock.Now().UTC(),
	}
	if err := o.deps.Poison.Publish(ctx, entry); err != nil {
		return nil, apperr.SinkError("poison_stream", err)
	}

	log.Warn().
		Str("stage", ae.Stage).
		Str("reason", entry.Reason).
		Int("attempts", attempts).
		Msg("item poisoned")

	return &Outcome{
		ItemID:   itemID,
		Decision: domain.DecisionPoisoned,
		Poison:   entry,
	}, nil
}

func (o *Orchestrator) record(stage string, start time.Time) {
	if o.deps.Stats != nil {
		o.deps.Stats.Record(stage, o.deps.Clock.Now().Sub(start))
	}
}
