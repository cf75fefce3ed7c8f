package domain

// IndexEntry is a chunk stored in a vector index together with its embedding.
// Entries are read-only once written; upserting the same ID replaces the
// chunk and vector but keeps the original insertion order.
type IndexEntry struct {
	// ID is the entry identifier, stable across re-indexing of the same chunk.
	ID string

	// Chunk is the indexed text and its metadata.
	Chunk Chunk

	// Vector is the chunk embedding.
	Vector []float32

	// Seq is the insertion order assigned by the index.
	// Lower values were inserted earlier.
	Seq int64
}

// ScoredEntry is an IndexEntry returned by a similarity search.
type ScoredEntry struct {
	// Entry is the matched index entry, including its vector.
	Entry IndexEntry

	// Score is the cosine similarity to the query (higher = closer).
	Score float64
}

// MetadataFilter narrows a search to entries whose chunk metadata contains
// every key with exactly the given value. An empty filter matches everything.
type MetadataFilter map[string]string

// Matches reports whether metadata satisfies the filter.
func (f MetadataFilter) Matches(metadata map[string]string) bool {
	for k, v := range f {
		got, ok := metadata[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// IsEmpty returns true when the filter has no conditions.
func (f MetadataFilter) IsEmpty() bool {
	return len(f) == 0
}
