package services

import (
	"math"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/vectormath"
)

// selectMMR greedily picks up to topK candidates by Maximum Marginal Relevance:
//
//	score = lambda*relevance - (1-lambda)*max(similarity to already selected)
//
// Relevance is the candidate's similarity to the query as scored by the index.
// The redundancy term is zero while nothing is selected. Equal scores go to
// the candidate inserted first.
func selectMMR(candidates []domain.ScoredEntry, topK int, lambda float64) []domain.RetrievedChunk {
	pool := make([]int, len(candidates))
	redundancy := make([]float64, len(candidates))
	for i := range pool {
		pool[i] = i
		redundancy[i] = math.Inf(-1)
	}

	selected := make([]domain.RetrievedChunk, 0, min(topK, len(candidates)))
	for len(selected) < topK && len(pool) > 0 {
		best := -1
		var bestScore float64
		for pos, i := range pool {
			var penalty float64
			if len(selected) > 0 {
				penalty = redundancy[i]
			}
			score := lambda*candidates[i].Score - (1-lambda)*penalty
			if best < 0 || score > bestScore ||
				(score == bestScore && candidates[i].Entry.Seq < candidates[pool[best]].Entry.Seq) {
				best, bestScore = pos, score
			}
		}

		chosen := candidates[pool[best]]
		selected = append(selected, domain.RetrievedChunk{
			Chunk:     chosen.Entry.Chunk,
			Relevance: chosen.Score,
			Seq:       chosen.Entry.Seq,
		})
		pool = append(pool[:best], pool[best+1:]...)

		for _, i := range pool {
			sim := vectormath.Cosine(chosen.Entry.Vector, candidates[i].Entry.Vector)
			redundancy[i] = max(redundancy[i], sim)
		}
	}
	return selected
}
