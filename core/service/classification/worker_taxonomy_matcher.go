package classification

import (
	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
)

// MatcherConfig holds taxonomy matching thresholds.
type MatcherConfig struct {
	// Floor is the rescaled similarity below which the match is the
	// reserved unclassified category instead of a forced best-effort pick.
	Floor float64
	// TieEpsilon bounds the similarity gap treated as a tie; ties break to
	// the lower category id for determinism.
	TieEpsilon float64
	// TopK is how many runner-up scores are kept for provenance.
	TopK int
}

// DefaultMatcherConfig returns the documented defaults.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{Floor: 0.55, TieEpsilon: 1e-6, TopK: 3}
}

// TaxonomyMatcher maps an embedding to the nearest approved category of an
// immutable snapshot. Deterministic given the same snapshot and embedding.
type TaxonomyMatcher struct {
	snapshot *domain.TaxonomySnapshot
	cfg      MatcherConfig
}

// NewTaxonomyMatcher creates a matcher bound to one snapshot activation.
func NewTaxonomyMatcher(snapshot *domain.TaxonomySnapshot, cfg MatcherConfig) *TaxonomyMatcher {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultMatcherConfig().TopK
	}
	if cfg.TieEpsilon <= 0 {
		cfg.TieEpsilon = DefaultMatcherConfig().TieEpsilon
	}
	return &TaxonomyMatcher{snapshot: snapshot, cfg: cfg}
}

// Match scores the embedding against every approved category centroid and
// returns the best match. Embeddings from a different model version than the
// snapshot's pin are a wiring bug and fail permanently.
func (m *TaxonomyMatcher) Match(embedding domain.Embedding) (*domain.CategoryMatch, error) {
	if m.snapshot == nil || m.snapshot.Empty() {
		version := ""
		if m.snapshot != nil {
			version = m.snapshot.Version
		}
		return nil, apperr.TaxonomyUnavailable(version)
	}
	if embedding.ModelVersion != m.snapshot.EmbedModelVersion {
		return nil, apperr.New(apperr.CodeTaxonomyUnavailable, apperr.StageMatch,
			"embedding model version does not match taxonomy pin", false).
			WithDetail("embedding_version", embedding.ModelVersion).
			WithDetail("pinned_version", m.snapshot.EmbedModelVersion)
	}

	categories := m.snapshot.Approved()
	scores := make([]domain.CategoryScore, 0, len(categories))

	best := -1
	for i, cat := range categories {
		sim := RescaleSimilarity(CosineSimilarity(embedding.Vector, cat.Centroid))
		scores = append(scores, domain.CategoryScore{
			CategoryID: cat.ID,
			Label:      cat.Label,
			Similarity: sim,
		})
		// Strictly-better wins; within epsilon the earlier (lower id,
		// categories are id-sorted) entry stands.
		if best < 0 || sim > scores[best].Similarity+m.cfg.TieEpsilon {
			best = i
		}
	}

	topK := topScores(scores, m.cfg.TopK)
	winner := scores[best]

	match := &domain.CategoryMatch{
		CategoryID:      winner.CategoryID,
		Label:           winner.Label,
		Similarity:      winner.Similarity,
		TaxonomyVersion: m.snapshot.Version,
		TopK:            topK,
	}

	if winner.Similarity < m.cfg.Floor {
		match.CategoryID = domain.CategoryUnclassified
		match.Label = domain.CategoryUnclassified
		match.Unclassified = true
	}
	return match, nil
}

// topScores returns the k highest-similarity entries, ties by lower id.
func topScores(scores []domain.CategoryScore, k int) []domain.CategoryScore {
	sorted := make([]domain.CategoryScore, len(scores))
	copy(sorted, scores)
	for i := 0; i < len(sorted) && i < k; i++ {
		maxIdx := i
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Similarity > sorted[maxIdx].Similarity {
				maxIdx = j
			}
		}
		sorted[i], sorted[maxIdx] = sorted[maxIdx], sorted[i]
	}
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}
