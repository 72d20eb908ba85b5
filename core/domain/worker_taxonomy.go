package domain

import "sort"

// ApprovalStatus gates which taxonomy categories are matchable.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDraft    ApprovalStatus = "draft"
	ApprovalRetired  ApprovalStatus = "retired"
)

// CategoryUnclassified is the reserved id returned when no approved category
// clears the similarity floor. It is never accepted by the router.
const CategoryUnclassified = "unclassified"

// TaxonomyCategory is one human-curated category with its reference
// embedding(s). Centroid is the mean of Exemplars, computed at snapshot load.
type TaxonomyCategory struct {
	ID        string
	Label     string
	Status    ApprovalStatus
	Exemplars [][]float32
	Centroid  []float32
}

// TaxonomySnapshot is the immutable, versioned set of categories pinned to
// one embedding model version. A new activation builds a new snapshot; an
// existing one is never mutated.
type TaxonomySnapshot struct {
	Version           string
	EmbedModelVersion string

	approved []TaxonomyCategory // sorted by ID for deterministic tie-breaks
	byID     map[string]TaxonomyCategory
}

// NewTaxonomySnapshot builds a snapshot from loaded categories, keeping only
// approved ones and precomputing centroids.
func NewTaxonomySnapshot(version, embedModelVersion string, categories []TaxonomyCategory) *TaxonomySnapshot {
	s := &TaxonomySnapshot{
		Version:           version,
		EmbedModelVersion: embedModelVersion,
		byID:              make(map[string]TaxonomyCategory),
	}

	for _, c := range categories {
		if c.Status != ApprovalApproved {
			continue
		}
		if len(c.Centroid) == 0 && len(c.Exemplars) > 0 {
			c.Centroid = meanVector(c.Exemplars)
		}
		if len(c.Centroid) == 0 {
			continue
		}
		s.approved = append(s.approved, c)
		s.byID[c.ID] = c
	}

	sort.Slice(s.approved, func(i, j int) bool { return s.approved[i].ID < s.approved[j].ID })
	return s
}

// Approved returns the matchable categories in ascending id order.
func (s *TaxonomySnapshot) Approved() []TaxonomyCategory {
	return s.approved
}

// Lookup returns an approved category by id.
func (s *TaxonomySnapshot) Lookup(id string) (TaxonomyCategory, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Empty reports whether no approved categories exist.
func (s *TaxonomySnapshot) Empty() bool {
	return len(s.approved) == 0
}

func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	mean := make([]float32, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			mean[i] += x
		}
		n++
	}
	if n == 0 {
		return nil
	}
	inv := 1 / float32(n)
	for i := range mean {
		mean[i] *= inv
	}
	return mean
}
