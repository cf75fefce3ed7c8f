package domain

import "fmt"

// Default retrieval parameters.
const (
	DefaultTopK       = 6
	DefaultFetchK     = 20
	DefaultLambdaMult = 0.7
)

// RetrievalOptions configures a Maximum Marginal Relevance retrieval.
type RetrievalOptions struct {
	// TopK is the number of chunks to return.
	TopK int

	// FetchK is the number of similarity candidates to consider.
	FetchK int

	// LambdaMult trades relevance (1.0) against diversity (0.0).
	LambdaMult float64

	// Filter optionally scopes the search to matching chunks.
	Filter MetadataFilter
}

// DefaultRetrievalOptions returns the default retrieval parameters.
func DefaultRetrievalOptions() RetrievalOptions {
	return RetrievalOptions{
		TopK:       DefaultTopK,
		FetchK:     DefaultFetchK,
		LambdaMult: DefaultLambdaMult,
	}
}

// Validate checks 1 <= TopK <= FetchK and 0 <= LambdaMult <= 1.
func (o RetrievalOptions) Validate() error {
	if o.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrInvalidInput, o.TopK)
	}
	if o.FetchK < o.TopK {
		return fmt.Errorf("%w: fetch_k (%d) must be >= top_k (%d)", ErrInvalidInput, o.FetchK, o.TopK)
	}
	if o.LambdaMult < 0 || o.LambdaMult > 1 {
		return fmt.Errorf("%w: lambda_mult must be within [0, 1], got %g", ErrInvalidInput, o.LambdaMult)
	}
	return nil
}

// RetrievedChunk is a chunk selected for a query.
type RetrievedChunk struct {
	// Chunk is the selected chunk.
	Chunk Chunk

	// Relevance is the similarity between the chunk and the query.
	Relevance float64

	// Seq is the insertion order of the underlying index entry.
	Seq int64
}

// RetrievalResult holds the ranked, diversified chunks for one query.
// It is produced fresh per query and consumed immediately.
type RetrievalResult struct {
	// Query is the question the chunks were retrieved for.
	Query string

	// Chunks are ordered by MMR selection.
	Chunks []RetrievedChunk
}

// IsEmpty returns true when no supporting context was found.
func (r *RetrievalResult) IsEmpty() bool {
	return r == nil || len(r.Chunks) == 0
}
