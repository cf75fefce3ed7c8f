package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_SeedIsCopied(t *testing.T) {
	seed := map[string]any{"llm.model": "a"}
	store := NewConfigStore(seed)

	require.NoError(t, store.Set("llm.model", "b"))

	assert.Equal(t, "a", seed["llm.model"])
	assert.Equal(t, "b", store.GetString("llm.model"))
}

func TestConfigStore_NilSeed(t *testing.T) {
	store := NewConfigStore(nil)

	require.NoError(t, store.Set("k", "v"))
	assert.Equal(t, "v", store.GetString("k"))
	assert.Equal(t, ":memory:", store.Path())
	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
}

func TestConfigStore_Numbers(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"int":     6,
		"int64":   int64(20),
		"float":   0.7,
		"string":  "6",
		"boolean": true,
	})

	tests := []struct {
		key       string
		wantInt   int
		wantFloat float64
	}{
		{"int", 6, 6},
		{"int64", 20, 20},
		{"float", 0, 0.7},
		{"string", 0, 0},
		{"missing", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.wantInt, store.GetInt(tt.key))
			assert.InDelta(t, tt.wantFloat, store.GetFloat(tt.key), 1e-9)
		})
	}
	assert.True(t, store.GetBool("boolean"))
	assert.False(t, store.GetBool("int"))
}

func TestConfigStore_GetStringSlice(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"typed":   []string{"semantic", "metadata"},
		"untyped": []any{"chunker", 3, "metadata"},
		"scalar":  "semantic",
	})

	assert.Equal(t, []string{"semantic", "metadata"}, store.GetStringSlice("typed"))
	assert.Equal(t, []string{"chunker", "metadata"}, store.GetStringSlice("untyped"))
	assert.Nil(t, store.GetStringSlice("scalar"))
	assert.Nil(t, store.GetStringSlice("missing"))
}
