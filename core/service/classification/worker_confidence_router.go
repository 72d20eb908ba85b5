package classification

import (
	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
)

// RouterConfig holds the confidence thresholds. Both are configuration, not
// code constants, and must satisfy 0 <= Low <= High <= 1.
type RouterConfig struct {
	LowThreshold  float64
	HighThreshold float64
}

// Validate enforces the threshold invariant at activation time.
func (c RouterConfig) Validate() error {
	if c.LowThreshold < 0 || c.HighThreshold > 1 || c.LowThreshold > c.HighThreshold {
		return apperr.ConfigError("confidence thresholds must satisfy 0 <= low <= high <= 1").
			WithDetail("low", c.LowThreshold).
			WithDetail("high", c.HighThreshold)
	}
	return nil
}

// ConfidenceRouter decides accepted / pending-audit / poisoned from the
// combined confidence signals. Evaluated once per thread after matching and
// intent classification complete.
type ConfidenceRouter struct {
	cfg RouterConfig
}

// NewConfidenceRouter creates a router with validated thresholds.
func NewConfidenceRouter(cfg RouterConfig) (*ConfidenceRouter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConfidenceRouter{cfg: cfg}, nil
}

// Combined returns min(similarity, confidence): raising either component can
// only raise or hold the combined score, so routing is monotonic.
func Combined(similarity, confidence float64) float64 {
	if similarity < confidence {
		return similarity
	}
	return confidence
}

// Route applies the decision state machine:
//
//	degenerate thread                 -> poisoned
//	C >= high                         -> accepted
//	low <= C < high, or unclassified  -> pending audit
//	C < low                           -> poisoned (too uncertain for audit)
func (r *ConfidenceRouter) Route(thread *domain.EmailThread, match *domain.CategoryMatch, intent *domain.IntentPrediction) domain.Decision {
	if thread == nil || thread.Degenerate {
		return domain.DecisionPoisoned
	}

	c := Combined(match.Similarity, intent.Confidence)

	if match.Unclassified {
		// Distinct from a low-confidence match: never silently accepted,
		// always worth a human-adjacent look unless hopeless.
		if c < r.cfg.LowThreshold {
			return domain.DecisionPoisoned
		}
		return domain.DecisionPendingAudit
	}

	switch {
	case c >= r.cfg.HighThreshold:
		return domain.DecisionAccepted
	case c >= r.cfg.LowThreshold:
		return domain.DecisionPendingAudit
	default:
		return domain.DecisionPoisoned
	}
}

// Result assembles the ClassificationResult for a routed thread.
func (r *ConfidenceRouter) Result(match *domain.CategoryMatch, intent *domain.IntentPrediction, decision domain.Decision) domain.ClassificationResult {
	return domain.ClassificationResult{
		CategoryID:         match.CategoryID,
		CategoryLabel:      match.Label,
		Similarity:         match.Similarity,
		Intent:             intent.Label,
		IntentConfidence:   intent.Confidence,
		CombinedConfidence: Combined(match.Similarity, intent.Confidence),
		Decision:           decision,
		TopK:               match.TopK,
	}
}
