package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
)

// mockSettingsService implements driving.SettingsService.
type mockSettingsService struct {
	settings domain.AppSettings
	values   map[string]driving.Setting
	getErr   error
	setErr   error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{
		settings: domain.DefaultAppSettings(),
		values: map[string]driving.Setting{
			"llm.provider":    {Key: "llm.provider", Value: "ollama", Source: "default"},
			"llm.api_key":     {Key: "llm.api_key", Value: "****abcd", Source: "env"},
			"retrieval.top_k": {Key: "retrieval.top_k", Value: "6", Source: "default"},
		},
	}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = driving.Setting{Key: key, Value: value, Source: "config"}
	return nil
}

func (m *mockSettingsService) Values() ([]driving.Setting, error) {
	out := make([]driving.Setting, 0, len(m.values))
	for _, v := range m.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockSettingsService) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *mockSettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// mockIndexService implements driving.IndexService.
type mockIndexService struct {
	reports []*driving.IndexReport
	err     error
	paths   []string
}

func (m *mockIndexService) IndexFile(_ context.Context, path string) (*driving.IndexReport, error) {
	m.paths = append(m.paths, path)
	return &driving.IndexReport{URI: path, Chunks: 1}, m.err
}

func (m *mockIndexService) IndexBytes(_ context.Context, name string, _ []byte) (*driving.IndexReport, error) {
	return &driving.IndexReport{URI: name, Chunks: 1}, m.err
}

func (m *mockIndexService) IndexFiles(_ context.Context, paths []string) ([]*driving.IndexReport, error) {
	m.paths = append(m.paths, paths...)
	return m.reports, m.err
}

func (m *mockIndexService) Supports(name string) bool {
	return true
}

// mockRetrievalService implements driving.RetrievalService.
type mockRetrievalService struct {
	chunks   []domain.RetrievedChunk
	err      error
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
	return &domain.RetrievalResult{Query: query, Chunks: m.chunks}, nil
}

// mockConversationService implements driving.ConversationService.
type mockConversationService struct {
	reply     string
	sources   []domain.RetrievedChunk
	noContext bool
	err       error

	histories map[string][]domain.Message
	asked     []string
	threads   []string
	cleared   []string
}

func newMockConversationService() *mockConversationService {
	return &mockConversationService{
		reply:     "Total revenue was $342.7M.",
		histories: make(map[string][]domain.Message),
	}
}

func (m *mockConversationService) answer(threadID, question string) *domain.Answer {
	m.asked = append(m.asked, threadID+":"+question)
	m.histories[threadID] = append(m.histories[threadID],
		domain.Message{Role: domain.RoleUser, Content: question},
		domain.Message{Role: domain.RoleAssistant, Content: m.reply},
	)
	return &domain.Answer{
		ThreadID:  threadID,
		Content:   m.reply,
		Sources:   m.sources,
		NoContext: m.noContext,
		Model:     m.ModelName(),
	}
}

func (m *mockConversationService) Ask(_ context.Context, threadID, question string) (*domain.Answer, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.answer(threadID, question), nil
}

func (m *mockConversationService) AskStream(_ context.Context, threadID, question string) (driving.AnswerStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &mockStream{
		fragments: []string{"Total revenue ", "was $342.7M."},
		final:     func() *domain.Answer { return m.answer(threadID, question) },
	}, nil
}

func (m *mockConversationService) History(_ context.Context, threadID string) ([]domain.Message, error) {
	history, ok := m.histories[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, domain.ErrNotFound)
	}
	return history, nil
}

func (m *mockConversationService) Threads(_ context.Context) ([]string, error) {
	if m.threads != nil {
		return m.threads, nil
	}
	ids := make([]string, 0, len(m.histories))
	for id := range m.histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockConversationService) Clear(_ context.Context, threadID string) error {
	m.cleared = append(m.cleared, threadID)
	delete(m.histories, threadID)
	return nil
}

func (m *mockConversationService) State(_ string) domain.EngineState {
	return domain.StateIdle
}

func (m *mockConversationService) ModelName() string {
	return "test-model"
}

type mockStream struct {
	fragments []string
	final     func() *domain.Answer
	answer    *domain.Answer
	closed    bool
}

func (s *mockStream) Recv() (string, error) {
	if len(s.fragments) == 0 {
		if s.answer == nil {
			s.answer = s.final()
		}
		return "", io.EOF
	}
	f := s.fragments[0]
	s.fragments = s.fragments[1:]
	return f, nil
}

func (s *mockStream) Answer() *domain.Answer {
	return s.answer
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

// mockValidator implements ConfigValidator.
type mockValidator struct {
	embeddingErr error
	llmErr       error
}

func (m *mockValidator) ValidateEmbedding(_ context.Context, _ domain.EmbeddingSettings) error {
	return m.embeddingErr
}

func (m *mockValidator) ValidateLLM(_ context.Context, _ domain.LLMSettings) error {
	return m.llmErr
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	settings     *mockSettingsService
	index        *mockIndexService
	retrieval    *mockRetrievalService
	conversation *mockConversationService
	validator    *mockValidator
}

// setupTestServices installs mock services and returns a cleanup function
// that restores the previous ones and resets all flags.
func setupTestServices() (*testServices, func()) {
	old := struct {
		settings     driving.SettingsService
		index        driving.IndexService
		retrieval    driving.RetrievalService
		conversation driving.ConversationService
		validator    ConfigValidator
		defaults     domain.RetrievalOptions
	}{settingsService, indexService, retrievalService, conversationService, configValidator, retrievalDefaults}

	ts := &testServices{
		settings:     newMockSettingsService(),
		index:        &mockIndexService{},
		retrieval:    &mockRetrievalService{},
		conversation: newMockConversationService(),
		validator:    &mockValidator{},
	}
	settingsService = ts.settings
	indexService = ts.index
	retrievalService = ts.retrieval
	conversationService = ts.conversation
	configValidator = ts.validator

	return ts, func() {
		settingsService = old.settings
		indexService = old.index
		retrievalService = old.retrieval
		conversationService = old.conversation
		configValidator = old.validator
		retrievalDefaults = old.defaults
		resetFlags(rootCmd)
	}
}

// resetFlags restores every flag in the tree to its default value.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue) //nolint:errcheck
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func retrievedChunk(docID, title string, seq int, content string, relevance float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		Chunk: domain.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, seq),
			DocumentID: docID,
			Sequence:   seq,
			Content:    content,
			Metadata: map[string]string{
				domain.MetaTitle:  title,
				domain.MetaSource: title + ".pdf",
			},
		},
		Relevance: relevance,
		Seq:       int64(seq),
	}
}

var (
	_ driving.SettingsService     = (*mockSettingsService)(nil)
	_ driving.IndexService        = (*mockIndexService)(nil)
	_ driving.RetrievalService    = (*mockRetrievalService)(nil)
	_ driving.ConversationService = (*mockConversationService)(nil)
	_ ConfigValidator             = (*mockValidator)(nil)
)

var errBusy = fmt.Errorf("thread default: %w", domain.ErrThreadBusy)
