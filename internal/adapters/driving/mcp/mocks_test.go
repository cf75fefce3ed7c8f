package mcp

import (
	"context"
	"fmt"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
)

// mockConversationService is a mock implementation of driving.ConversationService.
type mockConversationService struct {
	answer    *domain.Answer
	threads   []string
	histories map[string][]domain.Message
	err       error

	askedThread   string
	askedQuestion string
}

func (m *mockConversationService) Ask(_ context.Context, threadID, question string) (*domain.Answer, error) {
	m.askedThread = threadID
	m.askedQuestion = question
	if m.err != nil {
		return nil, m.err
	}
	answer := *m.answer
	answer.ThreadID = threadID
	return &answer, nil
}

func (m *mockConversationService) AskStream(_ context.Context, _, _ string) (driving.AnswerStream, error) {
	return nil, fmt.Errorf("streaming: %w", domain.ErrUnsupportedType)
}

func (m *mockConversationService) History(_ context.Context, threadID string) ([]domain.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	history, ok := m.histories[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, domain.ErrNotFound)
	}
	return history, nil
}

func (m *mockConversationService) Threads(_ context.Context) ([]string, error) {
	return m.threads, m.err
}

func (m *mockConversationService) Clear(_ context.Context, _ string) error {
	return m.err
}

func (m *mockConversationService) State(_ string) domain.EngineState {
	return domain.StateIdle
}

func (m *mockConversationService) ModelName() string {
	return "mock-model"
}

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	result *domain.RetrievalResult
	err    error

	lastOpts domain.RetrievalOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context,
	query string,
	opts domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.RetrievalResult{Query: query}, nil
	}
	return m.result, nil
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	report *driving.IndexReport
	err    error

	lastPath string
}

func (m *mockIndexService) IndexFile(_ context.Context, path string) (*driving.IndexReport, error) {
	m.lastPath = path
	return m.report, m.err
}

func (m *mockIndexService) IndexBytes(_ context.Context, _ string, _ []byte) (*driving.IndexReport, error) {
	return m.report, m.err
}

func (m *mockIndexService) IndexFiles(_ context.Context, _ []string) ([]*driving.IndexReport, error) {
	return []*driving.IndexReport{m.report}, m.err
}

func (m *mockIndexService) Supports(_ string) bool {
	return true
}

// Verify interface compliance.
var (
	_ driving.ConversationService = (*mockConversationService)(nil)
	_ driving.RetrievalService    = (*mockRetrievalService)(nil)
	_ driving.IndexService        = (*mockIndexService)(nil)
)

func retrievedChunk(docID string, seq int, content string, relevance float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		Chunk: domain.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, seq),
			DocumentID: docID,
			Sequence:   seq,
			Content:    content,
			Metadata: map[string]string{
				domain.MetaSource: docID + ".pdf",
				domain.MetaTitle:  "Annual Report",
			},
		},
		Relevance: relevance,
		Seq:       int64(seq),
	}
}
