// Package vectormath provides the similarity measures shared by the
// chunker, the in-process vector indexes and MMR retrieval.
package vectormath

import (
	"math"
	"slices"
)

// Cosine returns the cosine similarity of a and b in [-1, 1].
// It returns 0 when either vector has zero magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance returns 1 - Cosine(a, b).
func CosineDistance(a, b []float32) float64 {
	return 1 - Cosine(a, b)
}

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation between the closest ranks. values is not modified.
// It returns 0 for an empty slice.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
