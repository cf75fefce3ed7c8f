// Package rank orders vector index candidates for brute-force similarity
// search. It is shared by the embedded stores that score every entry in
// process.
package rank

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/vectormath"
)

// Collector accumulates scored entries for a single query.
type Collector struct {
	query   []float32
	filter  domain.MetadataFilter
	limit   int
	results []domain.ScoredEntry
}

// NewCollector prepares a collector returning at most limit entries.
func NewCollector(query []float32, limit int, filter domain.MetadataFilter) *Collector {
	return &Collector{
		query:  query,
		filter: filter,
		limit:  limit,
	}
}

// Offer scores entry against the query if it passes the filter.
func (c *Collector) Offer(entry domain.IndexEntry) {
	if !c.filter.IsEmpty() && !c.filter.Matches(entry.Chunk.Metadata) {
		return
	}
	c.results = append(c.results, domain.ScoredEntry{
		Entry: entry,
		Score: vectormath.Cosine(c.query, entry.Vector),
	})
}

// Results returns the collected entries by descending score.
// Equal scores keep insertion order.
func (c *Collector) Results() []domain.ScoredEntry {
	Sort(c.results)
	if len(c.results) > c.limit {
		c.results = c.results[:c.limit]
	}
	return c.results
}

// Sort orders entries by descending score, then ascending Seq.
func Sort(entries []domain.ScoredEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Entry.Seq < entries[j].Entry.Seq
	})
}

// CheckQuery validates a search request against the index dimensionality.
func CheckQuery(query []float32, fetchK, dimensions int) error {
	if len(query) != dimensions {
		return fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(query), dimensions, domain.ErrDimensionMismatch)
	}
	if fetchK < 1 {
		return fmt.Errorf("fetch_k must be at least 1, got %d: %w", fetchK, domain.ErrInvalidInput)
	}
	return nil
}

// CheckEntries validates entries before they are written.
func CheckEntries(entries []domain.IndexEntry, dimensions int) error {
	for i := range entries {
		if entries[i].ID == "" {
			return fmt.Errorf("entry %d has no id: %w", i, domain.ErrInvalidInput)
		}
		if len(entries[i].Vector) != dimensions {
			return fmt.Errorf("entry %s has %d dimensions, index has %d: %w",
				entries[i].ID, len(entries[i].Vector), dimensions, domain.ErrDimensionMismatch)
		}
	}
	return nil
}

// CheckDocument validates a whole-document replacement.
func CheckDocument(documentID string, entries []domain.IndexEntry, dimensions int) error {
	if documentID == "" {
		return fmt.Errorf("empty document id: %w", domain.ErrInvalidInput)
	}
	for i := range entries {
		if entries[i].Chunk.DocumentID != documentID {
			return fmt.Errorf("entry %s belongs to document %q, not %q: %w",
				entries[i].ID, entries[i].Chunk.DocumentID, documentID, domain.ErrInvalidInput)
		}
	}
	return CheckEntries(entries, dimensions)
}
