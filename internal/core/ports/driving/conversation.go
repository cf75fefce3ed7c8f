package driving

import (
	"context"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// ConversationService answers questions within conversation threads.
type ConversationService interface {
	// Ask answers question in thread threadID and commits the exchange.
	// The thread is created on first use. On failure nothing is committed.
	Ask(ctx context.Context, threadID, question string) (*domain.Answer, error)

	// AskStream starts a streaming answer. The exchange is committed only when
	// the stream reaches its end; cancelling ctx or closing the stream early
	// leaves the thread unmodified. Callers must Close the stream.
	AskStream(ctx context.Context, threadID, question string) (AnswerStream, error)

	// History returns the committed messages of a thread.
	History(ctx context.Context, threadID string) ([]domain.Message, error)

	// Threads returns all known thread identifiers.
	Threads(ctx context.Context) ([]string, error)

	// Clear deletes a thread and its history.
	Clear(ctx context.Context, threadID string) error

	// State returns the request state of a thread.
	State(threadID string) domain.EngineState

	// ModelName returns the language model answering questions.
	ModelName() string
}

// AnswerStream yields answer fragments as they are generated.
type AnswerStream interface {
	// Recv returns the next fragment, or io.EOF once the answer is complete
	// and committed.
	Recv() (string, error)

	// Answer returns the full answer after Recv has returned io.EOF, nil before.
	Answer() *domain.Answer

	// Close aborts the stream if it is still running and releases the thread.
	Close() error
}
