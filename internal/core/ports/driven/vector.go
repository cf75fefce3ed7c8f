package driven

import (
	"context"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// VectorIndex stores embedded chunks and answers similarity queries.
// Implementations are selected at configuration time: an embedded SQLite
// file, process memory, or a remote Milvus service.
//
// Readers never observe a partially written entry. Vectors whose length
// differs from Dimensions() are rejected with domain.ErrDimensionMismatch.
type VectorIndex interface {
	// Upsert stores entries, replacing any existing entry with the same ID.
	// A replaced entry keeps its original insertion order.
	Upsert(ctx context.Context, entries []domain.IndexEntry) error

	// ReplaceDocument makes entries the complete set stored for documentID.
	// Entries whose IDs are already stored are updated in place and keep
	// their insertion order; the document's other entries are removed.
	// Empty entries deletes the document. Every entry must carry
	// documentID as its chunk's DocumentID.
	ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error

	// Search returns up to fetchK entries most similar to query, ordered by
	// descending cosine similarity with ties broken by insertion order.
	// A non-empty filter restricts candidates to entries whose chunk
	// metadata matches.
	Search(ctx context.Context, query []float32, fetchK int, filter domain.MetadataFilter) ([]domain.ScoredEntry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the vector size the index was opened with.
	Dimensions() int

	// Close releases resources.
	Close() error
}
