package driven

import (
	"context"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// ThreadStore maps thread identifiers to ordered message histories.
// It is the only owner of thread state; callers receive copies.
type ThreadStore interface {
	// Create registers a thread. Creating an existing thread is a no-op.
	Create(ctx context.Context, threadID string) error

	// Append adds messages to the end of a thread in the given order.
	// All messages are committed together or none are.
	// Returns domain.ErrNotFound if the thread does not exist.
	Append(ctx context.Context, threadID string, messages ...domain.Message) error

	// History returns a copy of the thread's messages in append order.
	// Returns domain.ErrNotFound if the thread does not exist.
	History(ctx context.Context, threadID string) ([]domain.Message, error)

	// List returns all thread identifiers in lexical order.
	List(ctx context.Context) ([]string, error)

	// Delete removes a thread and its history.
	// Returns domain.ErrNotFound if the thread does not exist.
	Delete(ctx context.Context, threadID string) error
}
