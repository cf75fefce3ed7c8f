package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/rank"
	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory implementation of driven.VectorIndex.
// Contents are lost when the process exits.
type VectorIndex struct {
	mu         sync.RWMutex
	dimensions int
	entries    map[string]domain.IndexEntry
	nextSeq    int64
}

// NewVectorIndex creates an empty index for vectors of the given size.
func NewVectorIndex(dimensions int) *VectorIndex {
	return &VectorIndex{
		dimensions: dimensions,
		entries:    make(map[string]domain.IndexEntry),
	}
}

// Upsert stores entries, keeping the Seq of entries that already exist.
func (v *VectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rank.CheckEntries(entries, v.dimensions); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.put(entries)
	return nil
}

// put stores entries, keeping the Seq of entries that already exist.
// The caller holds mu.
func (v *VectorIndex) put(entries []domain.IndexEntry) {
	for _, e := range entries {
		if existing, ok := v.entries[e.ID]; ok {
			e.Seq = existing.Seq
		} else {
			v.nextSeq++
			e.Seq = v.nextSeq
		}
		v.entries[e.ID] = cloneEntry(e)
	}
}

// ReplaceDocument swaps the stored entries of documentID for entries under
// one lock, so readers see either the old or the new version.
func (v *VectorIndex) ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rank.CheckDocument(documentID, entries, v.dimensions); err != nil {
		return err
	}

	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[e.ID] = true
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for id, e := range v.entries {
		if e.Chunk.DocumentID == documentID && !keep[id] {
			delete(v.entries, id)
		}
	}
	v.put(entries)
	return nil
}

// Search scores every entry against query.
func (v *VectorIndex) Search(
	ctx context.Context,
	query []float32,
	fetchK int,
	filter domain.MetadataFilter,
) ([]domain.ScoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := rank.CheckQuery(query, fetchK, v.dimensions); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	c := rank.NewCollector(query, fetchK, filter)
	for _, e := range v.entries {
		c.Offer(cloneEntry(e))
	}
	return c.Results(), nil
}

// Count returns the number of stored entries.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries), nil
}

// Dimensions returns the vector size.
func (v *VectorIndex) Dimensions() int { return v.dimensions }

// Close is a no-op.
func (v *VectorIndex) Close() error { return nil }

func cloneEntry(e domain.IndexEntry) domain.IndexEntry {
	e.Vector = slices.Clone(e.Vector)
	e.Chunk.Metadata = maps.Clone(e.Chunk.Metadata)
	return e
}
