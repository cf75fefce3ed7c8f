// Package memory provides an in-process embedding cache.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

// DefaultMaxEntries bounds the cache when no limit is given.
const DefaultMaxEntries = 10000

// Cache is a bounded map of embeddings. When full, the oldest entry is
// evicted.
type Cache struct {
	mu         sync.Mutex
	entries    map[string][]float32
	order      []string
	maxEntries int
}

// New creates a cache holding up to maxEntries vectors.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string][]float32),
		maxEntries: maxEntries,
	}
}

// Get returns a copy of the cached vector.
func (c *Cache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Set stores a copy of vector under key.
func (c *Cache) Set(_ context.Context, key string, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = slices.Clone(vector)
	return nil
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases resources.
func (c *Cache) Close() error {
	return nil
}
