package services

import (
	"context"
	"hash/fnv"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/resilience"
)

const testDims = 64

// fakeEmbedder embeds text as a hashed bag of words, so texts sharing
// words are similar and unrelated texts are nearly orthogonal.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

var _ driven.EmbeddingService = (*fakeEmbedder)(nil)

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{}
}

// failing makes the next n calls return err.
func (e *fakeEmbedder) failing(n int, err error) *fakeEmbedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = n
	e.err = err
	return e
}

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	if e.failures > 0 {
		e.failures--
		err := e.err
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, domain.ErrInvalidInput
		}
		out[i] = bagOfWords(text)
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return testDims }
func (e *fakeEmbedder) ModelName() string { return "fake-embed" }
func (e *fakeEmbedder) Ping(context.Context) error { return nil }
func (e *fakeEmbedder) Close() error { return nil }

func bagOfWords(text string) []float32 {
	v := make([]float32, testDims)
	v[0] = 0.1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[1+int(h.Sum32()%(testDims-1))]++
	}
	return v
}

// fakeLLM answers from a callback and records the prompts it received.
type fakeLLM struct {
	mu       sync.Mutex
	prompts  [][]driven.ChatMessage
	reply    func(messages []driven.ChatMessage) (string, error)
	fragment int
	// gate, when set, blocks Chat until it is closed.
	gate chan struct{}
}

var _ driven.LLMService = (*fakeLLM)(nil)

func newFakeLLM(reply func([]driven.ChatMessage) (string, error)) *fakeLLM {
	return &fakeLLM{reply: reply, fragment: 4}
}

func echoLLM(answer string) *fakeLLM {
	return newFakeLLM(func([]driven.ChatMessage) (string, error) { return answer, nil })
}

func (l *fakeLLM) record(messages []driven.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, append([]driven.ChatMessage(nil), messages...))
}

func (l *fakeLLM) lastPrompt() []driven.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.prompts) == 0 {
		return nil
	}
	return l.prompts[len(l.prompts)-1]
}

func (l *fakeLLM) Chat(ctx context.Context, messages []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	l.record(messages)
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return l.reply(messages)
}

func (l *fakeLLM) ChatStream(ctx context.Context, messages []driven.ChatMessage, _ driven.ChatOptions) (driven.ChatStream, error) {
	l.record(messages)
	text, err := l.reply(messages)
	if err != nil {
		return nil, err
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := min(l.fragment, len(runes))
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}
	return &fakeStream{ctx: ctx, parts: parts}, nil
}

func (l *fakeLLM) ModelName() string { return "fake-llm" }
func (l *fakeLLM) Ping(context.Context) error { return nil }
func (l *fakeLLM) Close() error { return nil }

type fakeStream struct {
	ctx    context.Context
	parts  []string
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.closed {
		return "", io.ErrClosedPipe
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.parts) == 0 {
		return "", io.EOF
	}
	part := s.parts[0]
	s.parts = s.parts[1:]
	return part, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func fastPolicy(name string) *resilience.Policy {
	return resilience.New(name, domain.ResilienceSettings{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
}
