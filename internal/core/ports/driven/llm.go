// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// LLMService provides language model operations for answering questions.
//
// Implementations may include:
//   - Ollama (local models)
//   - OpenAI and OpenAI-compatible servers (Groq, LM Studio)
//   - Anthropic (Claude)
type LLMService interface {
	// Chat conducts a multi-turn conversation and returns the full reply.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	// ChatStream starts a streaming reply. The returned stream yields text
	// fragments in generation order. Cancelling ctx aborts generation.
	ChatStream(ctx context.Context, messages []ChatMessage, opts ChatOptions) (ChatStream, error)

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatStream is a forward-only sequence of generated text fragments.
type ChatStream interface {
	// Recv returns the next fragment. It returns io.EOF once the model has
	// signalled the end of the reply.
	Recv() (string, error)

	// Close aborts the stream and releases the underlying connection.
	Close() error
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures chat behaviour.
type ChatOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}
