package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
)

// Ensure ThreadStore implements the interface.
var _ driven.ThreadStore = (*ThreadStore)(nil)

// ThreadStore is an in-memory implementation of driven.ThreadStore.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string]*domain.Thread
	now     func() time.Time
}

// NewThreadStore creates an empty thread store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{
		threads: make(map[string]*domain.Thread),
		now:     time.Now,
	}
}

// Create registers a thread if it does not exist yet.
func (s *ThreadStore) Create(_ context.Context, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread id is required: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		s.threads[threadID] = &domain.Thread{ID: threadID, CreatedAt: s.now()}
	}
	return nil
}

// Append adds messages to a thread under a single lock.
func (s *ThreadStore) Append(_ context.Context, threadID string, messages ...domain.Message) error {
	if threadID == "" {
		return fmt.Errorf("thread id is required: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, domain.ErrNotFound)
	}
	for _, m := range messages {
		if m.Timestamp.IsZero() {
			m.Timestamp = s.now()
		}
		t.Messages = append(t.Messages, m)
	}
	return nil
}

// History returns a copy of the thread's messages.
func (s *ThreadStore) History(_ context.Context, threadID string) ([]domain.Message, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required: %w", domain.ErrInvalidInput)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, domain.ErrNotFound)
	}
	return slices.Clone(t.Messages), nil
}

// List returns thread identifiers in lexical order.
func (s *ThreadStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a thread.
func (s *ThreadStore) Delete(_ context.Context, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread id is required: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return fmt.Errorf("thread %s: %w", threadID, domain.ErrNotFound)
	}
	delete(s.threads, threadID)
	return nil
}
