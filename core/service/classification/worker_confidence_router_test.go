package classification

import (
	"testing"

	"triage_worker/core/domain"
)

func router(t *testing.T, low, high float64) *ConfidenceRouter {
	t.Helper()
	r, err := NewConfidenceRouter(RouterConfig{LowThreshold: low, HighThreshold: high})
	if err != nil {
		t.Fatalf("NewConfidenceRouter() error = %v", err)
	}
	return r
}

func TestRouterConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		low, high float64
		wantErr   bool
	}{
		{"valid", 0.55, 0.80, false},
		{"equal thresholds", 0.7, 0.7, false},
		{"full range", 0, 1, false},
		{"low above high", 0.9, 0.5, true},
		{"negative low", -0.1, 0.8, true},
		{"high above one", 0.5, 1.1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfidenceRouter(RouterConfig{LowThreshold: tt.low, HighThreshold: tt.high})
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCombinedIsMin(t *testing.T) {
	if got := Combined(0.92, 0.88); got != 0.88 {
		t.Errorf("Combined(0.92, 0.88) = %v, want 0.88", got)
	}
	if got := Combined(0.60, 0.95); got != 0.60 {
		t.Errorf("Combined(0.60, 0.95) = %v, want 0.60", got)
	}
}

func TestRouteThresholdBoundaries(t *testing.T) {
	r := router(t, 0.55, 0.80)
	thread := &domain.EmailThread{ConversationID: "conv-1"}

	tests := []struct {
		name       string
		similarity float64
		confidence float64
		want       domain.Decision
	}{
		{"well above high", 0.92, 0.88, domain.DecisionAccepted},
		{"exactly high", 0.80, 0.95, domain.DecisionAccepted},
		{"just below high", 0.7999, 0.95, domain.DecisionPendingAudit},
		{"exactly low", 0.55, 0.90, domain.DecisionPendingAudit},
		{"just below low", 0.5499, 0.90, domain.DecisionPoisoned},
		{"confidence is the weak link", 0.95, 0.60, domain.DecisionPendingAudit},
		{"both hopeless", 0.10, 0.20, domain.DecisionPoisoned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := &domain.CategoryMatch{CategoryID: "cat-billing", Similarity: tt.similarity}
			intent := &domain.IntentPrediction{Label: "refund_request", Confidence: tt.confidence}
			if got := r.Route(thread, match, intent); got != tt.want {
				t.Errorf("Route() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouteMonotonicInBothSignals(t *testing.T) {
	r := router(t, 0.55, 0.80)
	thread := &domain.EmailThread{ConversationID: "conv-1"}

	rank := map[domain.Decision]int{
		domain.DecisionPoisoned:     0,
		domain.DecisionPendingAudit: 1,
		domain.DecisionAccepted:     2,
	}

	steps := []float64{0.1, 0.3, 0.5, 0.55, 0.6, 0.8, 0.9, 1.0}
	for _, conf := range steps {
		prev := -1
		for _, sim := range steps {
			match := &domain.CategoryMatch{CategoryID: "cat-billing", Similarity: sim}
			intent := &domain.IntentPrediction{Label: "x", Confidence: conf}
			got := rank[r.Route(thread, match, intent)]
			if got < prev {
				t.Fatalf("routing regressed raising similarity to %v at confidence %v", sim, conf)
			}
			prev = got
		}
	}
}

func TestRouteDegenerateThreadAlwaysPoisoned(t *testing.T) {
	r := router(t, 0.55, 0.80)
	thread := &domain.EmailThread{ConversationID: "conv-1", Degenerate: true}
	match := &domain.CategoryMatch{CategoryID: "cat-billing", Similarity: 0.99}
	intent := &domain.IntentPrediction{Label: "x", Confidence: 0.99}

	if got := r.Route(thread, match, intent); got != domain.DecisionPoisoned {
		t.Errorf("Route() = %q, want %q", got, domain.DecisionPoisoned)
	}
}

func TestRouteUnclassifiedNeverAccepted(t *testing.T) {
	r := router(t, 0.55, 0.80)
	thread := &domain.EmailThread{ConversationID: "conv-1"}
	match := &domain.CategoryMatch{CategoryID: domain.CategoryUnclassified, Similarity: 0.99, Unclassified: true}
	intent := &domain.IntentPrediction{Label: "x", Confidence: 0.99}

	if got := r.Route(thread, match, intent); got != domain.DecisionPendingAudit {
		t.Errorf("Route() = %q, want %q", got, domain.DecisionPendingAudit)
	}

	match.Similarity = 0.10
	if got := r.Route(thread, match, intent); got != domain.DecisionPoisoned {
		t.Errorf("Route() with hopeless unclassified = %q, want %q", got, domain.DecisionPoisoned)
	}
}

func TestResultCarriesCombinedConfidence(t *testing.T) {
	r := router(t, 0.55, 0.80)
	match := &domain.CategoryMatch{
		CategoryID: "cat-billing", Label: "Billing", Similarity: 0.92,
		TopK: []domain.CategoryScore{{CategoryID: "cat-billing", Similarity: 0.92}},
	}
	intent := &domain.IntentPrediction{Label: "refund_request", Confidence: 0.88}

	res := r.Result(match, intent, domain.DecisionAccepted)
	if res.CombinedConfidence != 0.88 {
		t.Errorf("CombinedConfidence = %v, want 0.88", res.CombinedConfidence)
	}
	if res.Decision != domain.DecisionAccepted {
		t.Errorf("Decision = %q, want accepted", res.Decision)
	}
	if len(res.TopK) != 1 {
		t.Errorf("TopK not carried through")
	}
}
