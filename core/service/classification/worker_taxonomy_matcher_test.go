package classification

import (
	"math"
	"testing"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
)

const modelVersion = "embed-v1"

func snapshot(categories ...domain.TaxonomyCategory) *domain.TaxonomySnapshot {
	return domain.NewTaxonomySnapshot("tax-v1", modelVersion, categories)
}

func embedding(v ...float32) domain.Embedding {
	return domain.Embedding{Vector: v, ModelVersion: modelVersion}
}

func approved(id, label string, centroid ...float32) domain.TaxonomyCategory {
	return domain.TaxonomyCategory{
		ID:        id,
		Label:     label,
		Status:    domain.ApprovalApproved,
		Exemplars: [][]float32{centroid},
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"dimension mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchPicksNearestApprovedCategory(t *testing.T) {
	s := snapshot(
		approved("cat-billing", "Billing", 1, 0, 0),
		approved("cat-support", "Support", 0, 1, 0),
	)
	m := NewTaxonomyMatcher(s, DefaultMatcherConfig())

	match, err := m.Match(embedding(0.9, 0.1, 0))
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match.CategoryID != "cat-billing" {
		t.Errorf("CategoryID = %q, want cat-billing", match.CategoryID)
	}
	if match.Unclassified {
		t.Error("Unclassified = true for a strong match")
	}
	if len(match.TopK) != 2 {
		t.Errorf("len(TopK) = %d, want 2", len(match.TopK))
	}
	if match.TopK[0].CategoryID != "cat-billing" {
		t.Errorf("TopK[0] = %q, want the winner first", match.TopK[0].CategoryID)
	}
}

func TestMatchIgnoresUnapprovedCategories(t *testing.T) {
	draft := domain.TaxonomyCategory{
		ID:        "cat-draft",
		Label:     "Draft",
		Status:    domain.ApprovalDraft,
		Exemplars: [][]float32{{1, 0, 0}},
	}
	s := snapshot(draft, approved("cat-support", "Support", 0, 1, 0))
	m := NewTaxonomyMatcher(s, DefaultMatcherConfig())

	match, err := m.Match(embedding(1, 0, 0))
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match.CategoryID == "cat-draft" {
		t.Error("matched a non-approved category")
	}
}

func TestMatchDeterministicTieBreak(t *testing.T) {
	// Two identical centroids: the lower id must win, repeatedly.
	s := snapshot(
		approved("cat-b", "B", 1, 0),
		approved("cat-a", "A", 1, 0),
	)
	m := NewTaxonomyMatcher(s, DefaultMatcherConfig())

	for i := 0; i < 10; i++ {
		match, err := m.Match(embedding(1, 0))
		if err != nil {
			t.Fatalf("Match() error = %v", err)
		}
		if match.CategoryID != "cat-a" {
			t.Fatalf("tie broke to %q, want cat-a", match.CategoryID)
		}
	}
}

func TestMatchBelowFloorIsUnclassified(t *testing.T) {
	s := snapshot(approved("cat-billing", "Billing", 1, 0))
	m := NewTaxonomyMatcher(s, MatcherConfig{Floor: 0.9})

	// Orthogonal vector: rescaled similarity 0.5, below the floor.
	match, err := m.Match(embedding(0, 1))
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if !match.Unclassified {
		t.Error("Unclassified = false below the similarity floor")
	}
	if match.CategoryID != domain.CategoryUnclassified {
		t.Errorf("CategoryID = %q, want %q", match.CategoryID, domain.CategoryUnclassified)
	}
}

func TestMatchNoApprovedCategories(t *testing.T) {
	m := NewTaxonomyMatcher(snapshot(), DefaultMatcherConfig())

	_, err := m.Match(embedding(1, 0))
	if err == nil {
		t.Fatal("Match() error = nil, want taxonomy unavailable")
	}
	if apperr.CodeOf(err) != apperr.CodeTaxonomyUnavailable {
		t.Errorf("code = %q, want %q", apperr.CodeOf(err), apperr.CodeTaxonomyUnavailable)
	}
	if apperr.IsTransient(err) {
		t.Error("taxonomy unavailable must be permanent")
	}
}

func TestMatchRejectsMismatchedModelVersion(t *testing.T) {
	s := snapshot(approved("cat-billing", "Billing", 1, 0))
	m := NewTaxonomyMatcher(s, DefaultMatcherConfig())

	_, err := m.Match(domain.Embedding{Vector: []float32{1, 0}, ModelVersion: "embed-v2"})
	if err == nil {
		t.Fatal("Match() accepted an embedding from a different model version")
	}
}

func TestMatchCentroidFromMultipleExemplars(t *testing.T) {
	cat := domain.TaxonomyCategory{
		ID:     "cat-multi",
		Label:  "Multi",
		Status: domain.ApprovalApproved,
		Exemplars: [][]float32{
			{1, 0},
			{0, 1},
		},
	}
	s := snapshot(cat)

	got := s.Approved()[0].Centroid
	want := []float32{0.5, 0.5}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("Centroid = %v, want %v", got, want)
		}
	}
}
