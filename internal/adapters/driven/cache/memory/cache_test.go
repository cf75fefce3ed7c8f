package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := New(0)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	v := []float32{1, 2}
	require.NoError(t, c.Set(ctx, "k", v))
	v[0] = 99 // caller mutation must not leak into the cache

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got)
}

func TestCache_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := New(2)

	require.NoError(t, c.Set(ctx, "a", []float32{1}))
	require.NoError(t, c.Set(ctx, "b", []float32{2}))
	require.NoError(t, c.Set(ctx, "a", []float32{3}))
	require.NoError(t, c.Set(ctx, "c", []float32{4}))

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}
