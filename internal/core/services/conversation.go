package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
	"github.com/custodia-labs/pdfqa/internal/logger"
	"github.com/custodia-labs/pdfqa/internal/resilience"
)

// Ensure ConversationService implements the interface.
var _ driving.ConversationService = (*ConversationService)(nil)

// Prompt text used when no PromptStore is configured or it fails.
const (
	fallbackSystemPrompt = "Answer only from the Relevant Context and the conversation so far. " +
		"Never invent facts or figures. If the answer is not in the context, " +
		"say that the information is not in the documents."
	fallbackNoContext = "No relevant context was found in the indexed documents."

	contextHeading = "Relevant Context:"
)

// errStreamClosed is returned by Recv after Close.
var errStreamClosed = errors.New("answer stream closed")

// ConversationConfig holds the per-request parameters of a ConversationService.
type ConversationConfig struct {
	// Retrieval are the MMR parameters used for every question.
	Retrieval domain.RetrievalOptions

	// MaxHistory caps the prior messages sent to the model; oldest are dropped.
	MaxHistory int

	// Concurrency decides what happens to a second request for a busy thread.
	Concurrency domain.ConcurrencyPolicy

	// Chat is passed to the language model.
	Chat driven.ChatOptions
}

// DefaultConversationConfig returns the default conversation parameters.
func DefaultConversationConfig() ConversationConfig {
	defaults := domain.DefaultAppSettings()
	return ConversationConfig{
		Retrieval:   defaults.Retrieval.Options(),
		MaxHistory:  defaults.Conversation.MaxHistory,
		Concurrency: defaults.Conversation.Concurrency,
		Chat:        driven.ChatOptions{Temperature: defaults.LLM.Temperature},
	}
}

// ConversationService answers questions with retrieved context and keeps
// per-thread history. Requests for one thread are serialised; different
// threads proceed in parallel.
type ConversationService struct {
	retriever driving.RetrievalService
	llm       driven.LLMService
	threads   driven.ThreadStore
	prompts   driven.PromptStore
	policy    *resilience.Policy
	cfg       ConversationConfig
	gate      *threadGate
	observe   func(threadID string, state domain.EngineState)
	now       func() time.Time

	mu     sync.Mutex
	states map[string]domain.EngineState
}

// ConversationOption configures a ConversationService.
type ConversationOption func(*ConversationService)

// WithPromptStore loads the system instruction and no-context marker from store.
func WithPromptStore(store driven.PromptStore) ConversationOption {
	return func(s *ConversationService) {
		s.prompts = store
	}
}

// WithLLMPolicy retries model calls with p.
func WithLLMPolicy(p *resilience.Policy) ConversationOption {
	return func(s *ConversationService) {
		s.policy = p
	}
}

// WithStateObserver calls fn on every state transition.
// fn runs synchronously and must not call back into the service.
func WithStateObserver(fn func(threadID string, state domain.EngineState)) ConversationOption {
	return func(s *ConversationService) {
		s.observe = fn
	}
}

// NewConversationService creates a new conversation service.
func NewConversationService(
	retriever driving.RetrievalService,
	llm driven.LLMService,
	threads driven.ThreadStore,
	cfg ConversationConfig,
	opts ...ConversationOption,
) *ConversationService {
	s := &ConversationService{
		retriever: retriever,
		llm:       llm,
		threads:   threads,
		cfg:       cfg,
		gate:      newThreadGate(),
		now:       time.Now,
		states:    make(map[string]domain.EngineState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ModelName returns the language model answering questions.
func (s *ConversationService) ModelName() string {
	if s.llm == nil {
		return ""
	}
	return s.llm.ModelName()
}

// State returns the request state of a thread. Unknown threads are idle.
func (s *ConversationService) State(threadID string) domain.EngineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[threadID]
}

func (s *ConversationService) setState(threadID string, state domain.EngineState) {
	s.mu.Lock()
	s.states[threadID] = state
	s.mu.Unlock()

	logger.Debug("thread %s: %s", threadID, state)
	if s.observe != nil {
		s.observe(threadID, state)
	}
}

// History returns the committed messages of a thread.
func (s *ConversationService) History(ctx context.Context, threadID string) ([]domain.Message, error) {
	return s.threads.History(ctx, threadID)
}

// Threads returns all known thread identifiers.
func (s *ConversationService) Threads(ctx context.Context) ([]string, error) {
	return s.threads.List(ctx)
}

// Clear deletes a thread. A thread with a request in flight is busy.
func (s *ConversationService) Clear(ctx context.Context, threadID string) error {
	release, err := s.gate.acquire(ctx, threadID, false)
	if err != nil {
		return err
	}
	defer release()

	if err := s.threads.Delete(ctx, threadID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.states, threadID)
	s.mu.Unlock()
	return nil
}

// Ask answers question in thread threadID and commits the exchange.
func (s *ConversationService) Ask(ctx context.Context, threadID, question string) (*domain.Answer, error) {
	req, err := s.begin(ctx, threadID, question)
	if err != nil {
		return nil, err
	}
	defer req.release()

	s.setState(threadID, domain.StateGenerating)
	content, err := resilience.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.llm.Chat(ctx, req.messages, s.cfg.Chat)
	})
	if err != nil {
		s.setState(threadID, domain.StateFailed)
		return nil, fmt.Errorf("generate: %w", err)
	}

	answer, err := s.commit(ctx, req, content)
	if err != nil {
		s.setState(threadID, domain.StateFailed)
		return nil, err
	}
	s.setState(threadID, domain.StateIdle)
	return answer, nil
}

// AskStream starts a streaming answer. The thread stays held until the
// stream completes or is closed.
func (s *ConversationService) AskStream(ctx context.Context, threadID, question string) (driving.AnswerStream, error) {
	req, err := s.begin(ctx, threadID, question)
	if err != nil {
		return nil, err
	}

	s.setState(threadID, domain.StateGenerating)
	inner, err := resilience.Do(ctx, s.policy, func(ctx context.Context) (driven.ChatStream, error) {
		return s.llm.ChatStream(ctx, req.messages, s.cfg.Chat)
	})
	if err != nil {
		s.setState(threadID, domain.StateFailed)
		req.release()
		return nil, fmt.Errorf("generate: %w", err)
	}

	return &answerStream{svc: s, ctx: ctx, req: req, inner: inner}, nil
}

// request is a question that has passed retrieval and composition.
type request struct {
	threadID string
	question string
	result   *domain.RetrievalResult
	messages []driven.ChatMessage
	release  func()
}

// begin validates the question, takes the thread and runs the Retrieving
// and Composing stages. On error the thread is released.
func (s *ConversationService) begin(ctx context.Context, threadID, question string) (_ *request, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(threadID) == "" {
		return nil, fmt.Errorf("%w: empty thread id", domain.ErrInvalidInput)
	}
	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}

	release, err := s.gate.acquire(ctx, threadID, s.cfg.Concurrency == domain.ConcurrencyQueue)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.setState(threadID, domain.StateFailed)
			release()
		}
	}()

	logger.Section("Question")
	s.setState(threadID, domain.StateRetrieving)

	// The thread is created on commit; until then it has no history.
	history, err := s.threads.History(ctx, threadID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load history: %w", err)
	}

	result, err := s.retriever.Retrieve(ctx, question, s.cfg.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	s.setState(threadID, domain.StateComposing)
	return &request{
		threadID: threadID,
		question: question,
		result:   result,
		messages: s.compose(history, question, result),
		release:  release,
	}, nil
}

// compose builds the model prompt: system instruction, the newest
// MaxHistory prior messages, then the context block and the question.
func (s *ConversationService) compose(
	history []domain.Message, question string, result *domain.RetrievalResult,
) []driven.ChatMessage {
	if len(history) > s.cfg.MaxHistory {
		history = history[len(history)-s.cfg.MaxHistory:]
	}

	messages := make([]driven.ChatMessage, 0, len(history)+2)
	messages = append(messages, driven.ChatMessage{
		Role:    domain.RoleSystem.String(),
		Content: s.prompt(driven.PromptAnswerSystem, fallbackSystemPrompt),
	})
	for _, m := range history {
		messages = append(messages, driven.ChatMessage{Role: m.Role.String(), Content: m.Content})
	}

	var b strings.Builder
	if result.IsEmpty() {
		b.WriteString(s.prompt(driven.PromptNoContext, fallbackNoContext))
	} else {
		b.WriteString(contextHeading)
		for i, c := range result.Chunks {
			b.WriteString("\n\n[")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString("]")
			if src := citation(c.Chunk); src != "" {
				b.WriteString(" ")
				b.WriteString(src)
			}
			b.WriteString("\n")
			b.WriteString(c.Chunk.Content)
		}
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)

	messages = append(messages, driven.ChatMessage{Role: domain.RoleUser.String(), Content: b.String()})
	logger.Debug("prompt: %d history messages, %d context chunks", len(history), len(resultChunks(result)))
	return messages
}

func (s *ConversationService) prompt(name, fallback string) string {
	if s.prompts == nil {
		return fallback
	}
	text, err := s.prompts.Load(name)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			logger.Warn("prompt %s: %v", name, err)
		}
		return fallback
	}
	return text
}

// citation renders "(title, part n)" from chunk metadata.
func citation(c domain.Chunk) string {
	title := c.Metadata[domain.MetaTitle]
	if title == "" {
		title = c.Metadata[domain.MetaSource]
	}
	if title == "" {
		return ""
	}
	if seq, ok := c.Metadata[domain.MetaSequence]; ok {
		return "(" + title + ", part " + seq + ")"
	}
	return "(" + title + ")"
}

func resultChunks(r *domain.RetrievalResult) []domain.RetrievedChunk {
	if r == nil {
		return nil
	}
	return r.Chunks
}

// commit creates the thread if needed and appends the question and answer
// together.
func (s *ConversationService) commit(ctx context.Context, req *request, content string) (*domain.Answer, error) {
	if err := s.threads.Create(ctx, req.threadID); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	now := s.now()
	err := s.threads.Append(ctx, req.threadID,
		domain.Message{Role: domain.RoleUser, Content: req.question, Timestamp: now},
		domain.Message{Role: domain.RoleAssistant, Content: content, Timestamp: now},
	)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &domain.Answer{
		ThreadID:  req.threadID,
		Content:   content,
		Sources:   resultChunks(req.result),
		NoContext: req.result.IsEmpty(),
		Model:     s.ModelName(),
	}, nil
}

// answerStream forwards model fragments and commits on completion.
type answerStream struct {
	svc   *ConversationService
	ctx   context.Context
	req   *request
	inner driven.ChatStream

	mu      sync.Mutex
	content strings.Builder
	answer  *domain.Answer
	done    bool
	once    sync.Once
}

var _ driving.AnswerStream = (*answerStream)(nil)

// Recv returns the next fragment. Cancellation is checked before each read.
func (a *answerStream) Recv() (string, error) {
	a.mu.Lock()
	if a.done {
		finished := a.answer != nil
		a.mu.Unlock()
		if finished {
			return "", io.EOF
		}
		return "", errStreamClosed
	}
	a.mu.Unlock()

	if err := a.ctx.Err(); err != nil {
		a.finish(domain.StateFailed)
		return "", err
	}

	fragment, err := a.inner.Recv()
	if errors.Is(err, io.EOF) {
		return "", a.complete()
	}
	if err != nil {
		if !a.finish(domain.StateFailed) {
			return "", errStreamClosed
		}
		if ctxErr := a.ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("generate: %w", err)
	}

	a.mu.Lock()
	a.content.WriteString(fragment)
	a.mu.Unlock()
	return fragment, nil
}

// complete commits the exchange once the model has finished. A stream
// closed concurrently is not committed.
func (a *answerStream) complete() error {
	result := errStreamClosed
	a.once.Do(func() {
		state := domain.StateIdle
		result = io.EOF
		if err := a.ctx.Err(); err != nil {
			state, result = domain.StateFailed, err
		} else {
			a.mu.Lock()
			content := a.content.String()
			a.mu.Unlock()

			answer, err := a.svc.commit(a.ctx, a.req, content)
			if err != nil {
				state, result = domain.StateFailed, err
			} else {
				a.mu.Lock()
				a.answer = answer
				a.mu.Unlock()
			}
		}
		a.end(state)
	})
	return result
}

// finish ends the request without committing. It reports whether this
// call ended it.
func (a *answerStream) finish(state domain.EngineState) bool {
	ended := false
	a.once.Do(func() {
		ended = true
		a.end(state)
	})
	return ended
}

// end closes the model stream, records the final state and releases the thread.
func (a *answerStream) end(state domain.EngineState) {
	_ = a.inner.Close()
	a.mu.Lock()
	a.done = true
	a.mu.Unlock()
	a.svc.setState(a.req.threadID, state)
	a.req.release()
}

// Answer returns the committed answer after Recv has returned io.EOF.
func (a *answerStream) Answer() *domain.Answer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.answer
}

// Close aborts an unfinished stream without committing anything.
func (a *answerStream) Close() error {
	a.finish(domain.StateIdle)
	return nil
}
