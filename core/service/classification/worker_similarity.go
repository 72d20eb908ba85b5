// Package classification implements taxonomy matching, intent classification
// and confidence routing over version-pinned embeddings.
package classification

import "math"

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns 0 for mismatched dimensions or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RescaleSimilarity maps raw cosine [-1,1] into [0,1] so scores compose with
// classifier confidences and thresholds.
func RescaleSimilarity(cos float64) float64 {
	s := (cos + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
