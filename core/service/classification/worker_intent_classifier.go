package classification

import (
	"math"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
)

// IntentClassifier assigns a fine-grained intent label within the matched
// category. It is a lightweight linear head over the thread embedding with
// softmax-normalized confidences: deterministic given identical inputs and
// model version, no sampling at inference.
type IntentClassifier struct {
	model *out.IntentModel
}

// NewIntentClassifier creates a classifier bound to one model activation.
func NewIntentClassifier(model *out.IntentModel) *IntentClassifier {
	return &IntentClassifier{model: model}
}

// ModelVersion returns the active intent model version.
func (c *IntentClassifier) ModelVersion() string {
	if c.model == nil {
		return ""
	}
	return c.model.Version
}

// Classify scores every intent class eligible for the matched category and
// returns the argmax label with its softmax confidence.
func (c *IntentClassifier) Classify(embedding domain.Embedding, categoryID string) (*domain.IntentPrediction, error) {
	if c.model == nil || len(c.model.Classes) == 0 {
		return nil, apperr.ClassifierFailed("no_model", nil)
	}

	type scored struct {
		label string
		logit float64
	}
	var candidates []scored

	for _, class := range c.model.Classes {
		if !classCovers(class, categoryID) {
			continue
		}
		logit, ok := dotProduct(class.Weights, embedding.Vector)
		if !ok {
			return nil, apperr.ClassifierFailed("dimension_mismatch", nil).
				WithDetail("label", class.Label)
		}
		candidates = append(candidates, scored{label: class.Label, logit: logit + class.Bias})
	}
	if len(candidates) == 0 {
		return nil, apperr.ClassifierFailed("no_eligible_intents", nil).
			WithDetail("category_id", categoryID)
	}

	// Softmax with max-subtraction for numeric stability. Argmax ties break
	// to the earlier class for determinism.
	maxLogit := candidates[0].logit
	for _, cand := range candidates[1:] {
		if cand.logit > maxLogit {
			maxLogit = cand.logit
		}
	}
	var sum float64
	best := 0
	for i, cand := range candidates {
		sum += math.Exp(cand.logit - maxLogit)
		if cand.logit > candidates[best].logit {
			best = i
		}
	}
	confidence := math.Exp(candidates[best].logit-maxLogit) / sum

	return &domain.IntentPrediction{
		Label:        candidates[best].label,
		Confidence:   confidence,
		ModelVersion: c.model.Version,
	}, nil
}

// classCovers reports whether the class is eligible for the category.
// An empty scope means category-independent.
func classCovers(class out.IntentClass, categoryID string) bool {
	if len(class.Categories) == 0 {
		return true
	}
	for _, id := range class.Categories {
		if id == categoryID {
			return true
		}
	}
	return false
}

func dotProduct(w []float32, v []float32) (float64, bool) {
	if len(w) != len(v) || len(w) == 0 {
		return 0, false
	}
	var dot float64
	for i := range w {
		dot += float64(w[i]) * float64(v[i])
	}
	return dot, true
}
