package domain

import "time"

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// Message is a single turn in a conversation. Messages are immutable once appended.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Thread is an ordered conversation history identified by ID.
type Thread struct {
	ID        string
	Messages  []Message
	CreatedAt time.Time
}

// Answer is the outcome of one successful question.
type Answer struct {
	// ThreadID is the conversation the exchange was committed to.
	ThreadID string

	// Content is the generated answer text.
	Content string

	// Sources are the chunks supplied to the model as context.
	Sources []RetrievedChunk

	// NoContext is true when retrieval found nothing and the model was told so.
	NoContext bool

	// Model is the language model that produced the answer.
	Model string
}

// EngineState is a stage of the per-request conversation state machine.
type EngineState int

// Conversation states. A request moves Idle -> Retrieving -> Composing ->
// Generating -> Idle, or to Failed from any stage.
const (
	StateIdle EngineState = iota
	StateRetrieving
	StateComposing
	StateGenerating
	StateFailed
)

// String returns a human-readable state name.
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetrieving:
		return "retrieving"
	case StateComposing:
		return "composing"
	case StateGenerating:
		return "generating"
	case StateFailed:
		return "failed"
	default:
		return unknownDescription
	}
}
