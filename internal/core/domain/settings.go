package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderGroq is the Groq cloud API (OpenAI-compatible).
	AIProviderGroq AIProvider = "groq"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderGroq, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderGroq || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderGroq:
		return "Groq (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// VectorStoreType selects the VectorIndex backing implementation.
type VectorStoreType string

// Available vector stores.
const (
	// VectorStoreSQLite is the embedded file-based store.
	VectorStoreSQLite VectorStoreType = "sqlite"

	// VectorStoreMemory keeps vectors in process memory only.
	VectorStoreMemory VectorStoreType = "memory"

	// VectorStoreMilvus is a remote Milvus service.
	VectorStoreMilvus VectorStoreType = "milvus"
)

// IsValid returns true if the store type is recognised.
func (t VectorStoreType) IsValid() bool {
	switch t {
	case VectorStoreSQLite, VectorStoreMemory, VectorStoreMilvus:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t VectorStoreType) String() string {
	return string(t)
}

// CacheType selects the embedding cache backend.
type CacheType string

// Available embedding caches.
const (
	CacheNone   CacheType = "none"
	CacheMemory CacheType = "memory"
	CacheRedis  CacheType = "redis"
)

// IsValid returns true if the cache type is recognised.
func (t CacheType) IsValid() bool {
	return t == CacheNone || t == CacheMemory || t == CacheRedis
}

// ConcurrencyPolicy decides what happens to a second request for a busy thread.
type ConcurrencyPolicy string

// Available policies.
const (
	// ConcurrencyReject fails the second request with ErrThreadBusy.
	ConcurrencyReject ConcurrencyPolicy = "reject"

	// ConcurrencyQueue makes the second request wait for the first.
	ConcurrencyQueue ConcurrencyPolicy = "queue"
)

// IsValid returns true if the policy is recognised.
func (p ConcurrencyPolicy) IsValid() bool {
	return p == ConcurrencyReject || p == ConcurrencyQueue
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or compatible servers).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions overrides the known dimensionality of Model.
	Dimensions int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// ResolvedDimensions returns the configured dimensionality, falling back to
// the known size of the model.
func (e EmbeddingSettings) ResolvedDimensions() int {
	if e.Dimensions > 0 {
		return e.Dimensions
	}
	return EmbeddingDimensions()[e.Model]
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or compatible servers).
	BaseURL string

	// APIKey is the API key (for OpenAI/Groq/Anthropic).
	APIKey string

	// Temperature controls randomness of answers.
	Temperature float64

	// MaxTokens caps the answer length, zero for provider default.
	MaxTokens int
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ChunkingSettings configures semantic chunk boundary detection.
type ChunkingSettings struct {
	// BreakpointPercentile is the percentile of adjacent sentence distances
	// above which a boundary is placed.
	BreakpointPercentile float64

	// BufferSize is the number of neighbouring sentences embedded with each sentence.
	BufferSize int

	// MaxChunkSize is the rune ceiling for a single chunk.
	MaxChunkSize int
}

// RetrievalSettings holds the default MMR parameters.
type RetrievalSettings struct {
	TopK       int
	FetchK     int
	LambdaMult float64
}

// Options converts the settings into retrieval options.
func (r RetrievalSettings) Options() RetrievalOptions {
	return RetrievalOptions{
		TopK:       r.TopK,
		FetchK:     r.FetchK,
		LambdaMult: r.LambdaMult,
	}
}

// VectorStoreSettings holds vector index configuration.
type VectorStoreSettings struct {
	// Type selects the backing implementation.
	Type VectorStoreType

	// Path is the database file for the sqlite store.
	Path string

	// Address is the host:port of a remote store.
	Address string

	// Username and Password authenticate against a remote store.
	Username string
	Password string

	// Database is the remote database name.
	Database string

	// Collection is the remote collection name.
	Collection string
}

// ConversationSettings configures the conversation engine.
type ConversationSettings struct {
	// MaxHistory is the maximum number of prior messages included in a prompt.
	MaxHistory int

	// Concurrency decides how concurrent requests for one thread are handled.
	Concurrency ConcurrencyPolicy
}

// ResilienceSettings configures retries against external services.
type ResilienceSettings struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// CacheSettings configures the embedding cache.
type CacheSettings struct {
	Type      CacheType
	RedisAddr string
	RedisDB   int
}

// IndexingSettings configures the ingestion pipeline.
type IndexingSettings struct {
	// Concurrency is the number of documents indexed in parallel.
	Concurrency int

	// EmbeddingRPS throttles embedding requests, zero disables throttling.
	EmbeddingRPS float64
}

// AppSettings holds all application settings.
// Settings are read once at startup and never change during the process lifetime.
type AppSettings struct {
	Embedding    EmbeddingSettings
	LLM          LLMSettings
	Chunking     ChunkingSettings
	Pipeline     PipelineConfig
	Retrieval    RetrievalSettings
	VectorStore  VectorStoreSettings
	Conversation ConversationSettings
	Resilience   ResilienceSettings
	Cache        CacheSettings
	Indexing     IndexingSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// Both AI services default to a local Ollama so no credentials are needed.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider: AIProviderOllama,
			Model:    DefaultEmbeddingModels()[AIProviderOllama],
		},
		LLM: LLMSettings{
			Provider:    AIProviderOllama,
			Model:       DefaultLLMModels()[AIProviderOllama],
			Temperature: 0.1,
		},
		Chunking: ChunkingSettings{
			BreakpointPercentile: 95,
			BufferSize:           1,
			MaxChunkSize:         2000,
		},
		Pipeline: DefaultPipelineConfig(),
		Retrieval: RetrievalSettings{
			TopK:       DefaultTopK,
			FetchK:     DefaultFetchK,
			LambdaMult: DefaultLambdaMult,
		},
		VectorStore: VectorStoreSettings{
			Type:       VectorStoreSQLite,
			Collection: "pdfqa_chunks",
		},
		Conversation: ConversationSettings{
			MaxHistory:  20,
			Concurrency: ConcurrencyReject,
		},
		Resilience: ResilienceSettings{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
		Cache: CacheSettings{
			Type: CacheMemory,
		},
		Indexing: IndexingSettings{
			Concurrency: 2,
		},
	}
}

// Validate rejects settings the pipeline cannot run with.
func (s *AppSettings) Validate() error {
	if !s.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidInput, s.Embedding.Provider)
	}
	if !s.LLM.Provider.IsValid() {
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidInput, s.LLM.Provider)
	}
	if s.Chunking.BreakpointPercentile <= 0 || s.Chunking.BreakpointPercentile > 100 {
		return fmt.Errorf("%w: chunking.breakpoint_percentile must be within (0, 100]", ErrInvalidInput)
	}
	if s.Chunking.BufferSize < 0 {
		return fmt.Errorf("%w: chunking.buffer_size must not be negative", ErrInvalidInput)
	}
	if s.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: chunking.max_chunk_size must be positive", ErrInvalidInput)
	}
	if err := s.Retrieval.Options().Validate(); err != nil {
		return err
	}
	if !s.VectorStore.Type.IsValid() {
		return fmt.Errorf("%w: vector store %q", ErrUnsupportedType, s.VectorStore.Type)
	}
	if s.Conversation.MaxHistory < 0 {
		return fmt.Errorf("%w: conversation.max_history must not be negative", ErrInvalidInput)
	}
	if !s.Conversation.Concurrency.IsValid() {
		return fmt.Errorf("%w: conversation.concurrency must be reject or queue", ErrInvalidInput)
	}
	if s.Resilience.MaxAttempts < 1 {
		return fmt.Errorf("%w: resilience.max_attempts must be at least 1", ErrInvalidInput)
	}
	if !s.Cache.Type.IsValid() {
		return fmt.Errorf("%w: cache %q", ErrUnsupportedType, s.Cache.Type)
	}
	return nil
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGroq,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderGroq:      "openai/gpt-oss-20b",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// DefaultPipelineConfig returns the default pipeline configuration:
// semantic chunking followed by metadata annotation.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processors: []string{"semantic", "metadata"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size": 500,
				"overlap":    100,
			},
		},
	}
}
