// Package redis provides a Redis-backed embedding cache shared across
// processes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/vectormath"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

// Default configuration values.
const (
	DefaultPrefix      = "pdfqa:embedding:"
	DefaultTTL         = 7 * 24 * time.Hour
	DefaultDialTimeout = 5 * time.Second
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces cache keys (default: pdfqa:embedding:).
	Prefix string

	// TTL expires entries; zero uses DefaultTTL, negative disables expiry.
	TTL time.Duration
}

// Cache stores embeddings as little-endian float32 blobs.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: DefaultDialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, errors.Join(domain.ErrTransient, err))
	}

	return NewFromClient(client, cfg), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, cfg Config) *Cache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ttl := cfg.TTL
	switch {
	case ttl == 0:
		ttl = DefaultTTL
	case ttl < 0:
		ttl = 0
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached vector, or false on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", errors.Join(domain.ErrTransient, err))
	}

	v, err := vectormath.Decode(b)
	if err != nil {
		// A malformed entry is treated as a miss and overwritten later.
		return nil, false, nil
	}
	return v, true, nil
}

// Set stores vector under key.
func (c *Cache) Set(ctx context.Context, key string, vector []float32) error {
	if err := c.client.Set(ctx, c.prefix+key, vectormath.Encode(vector), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", errors.Join(domain.ErrTransient, err))
	}
	return nil
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
