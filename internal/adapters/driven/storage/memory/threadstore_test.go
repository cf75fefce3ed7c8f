package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

func TestThreadStore_AppendInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()
	require.NoError(t, store.Create(ctx, "t1"))

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "t1", domain.Message{Role: domain.RoleUser, Content: fmt.Sprint(i)}))
	}

	history, err := store.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, m := range history {
		assert.Equal(t, fmt.Sprint(i), m.Content)
		assert.False(t, m.Timestamp.IsZero())
	}
}

func TestThreadStore_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()
	require.NoError(t, store.Create(ctx, "t1"))
	require.NoError(t, store.Append(ctx, "t1", domain.Message{Role: domain.RoleUser, Content: "hi"}))
	require.NoError(t, store.Create(ctx, "t1"))

	history, err := store.History(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestThreadStore_UnknownThread(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	assert.ErrorIs(t, store.Append(ctx, "nope", domain.Message{}), domain.ErrNotFound)
	_, err := store.History(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "nope"), domain.ErrNotFound)
}

func TestThreadStore_EmptyID(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	assert.ErrorIs(t, store.Create(ctx, ""), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.Append(ctx, ""), domain.ErrInvalidInput)
	_, err := store.History(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, store.Delete(ctx, ""), domain.ErrInvalidInput)
}

func TestThreadStore_HistoryIsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()
	require.NoError(t, store.Create(ctx, "t1"))
	require.NoError(t, store.Append(ctx, "t1", domain.Message{Role: domain.RoleUser, Content: "original"}))

	history, err := store.History(ctx, "t1")
	require.NoError(t, err)
	history[0].Content = "changed"

	again, err := store.History(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestThreadStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()
	for _, id := range []string{"b", "c", "a"} {
		require.NoError(t, store.Create(ctx, id))
	}

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, store.Delete(ctx, "b"))
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestThreadStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()
	require.NoError(t, store.Create(ctx, "t1"))

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				q := domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("%d-%d", w, i)}
				a := domain.Message{Role: domain.RoleAssistant, Content: fmt.Sprintf("%d-%d", w, i)}
				assert.NoError(t, store.Append(ctx, "t1", q, a))
			}
		}()
	}
	wg.Wait()

	history, err := store.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, history, writers*perWriter*2)

	seen := make(map[string]bool)
	lastPerWriter := make(map[int]int)
	for i := 0; i < len(history); i += 2 {
		q, a := history[i], history[i+1]
		assert.Equal(t, domain.RoleUser, q.Role)
		assert.Equal(t, domain.RoleAssistant, a.Role)
		assert.Equal(t, q.Content, a.Content, "pairs are never interleaved")
		assert.False(t, seen[q.Content], "no duplication")
		seen[q.Content] = true

		var w, n int
		_, err := fmt.Sscanf(q.Content, "%d-%d", &w, &n)
		require.NoError(t, err)
		if last, ok := lastPerWriter[w]; ok {
			assert.Greater(t, n, last, "per-writer order is preserved")
		}
		lastPerWriter[w] = n
	}
}
