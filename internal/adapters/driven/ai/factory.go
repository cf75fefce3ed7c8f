// Package ai provides factory functions for creating AI service adapters
// and the vector index they feed.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	memorycache "github.com/custodia-labs/pdfqa/internal/adapters/driven/cache/memory"
	rediscache "github.com/custodia-labs/pdfqa/internal/adapters/driven/cache/redis"
	"github.com/custodia-labs/pdfqa/internal/adapters/driven/embedding/cached"
	ollamaembed "github.com/custodia-labs/pdfqa/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/pdfqa/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/pdfqa/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/pdfqa/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/pdfqa/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/milvus"
	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the services built from application settings.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	LLMService       driven.LLMService
	VectorIndex      driven.VectorIndex
	Warnings         []string // Non-fatal issues, such as an unreachable cache.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	if r.VectorIndex != nil {
		r.VectorIndex.Close()
	}
	if r.LLMService != nil {
		r.LLMService.Close()
	}
}

// Options selects which services Init builds and validates.
type Options struct {
	// SkipLLM leaves LLMService nil, for commands that only index or retrieve.
	SkipLLM bool

	// SkipPing disables connectivity validation.
	SkipPing bool
}

// Init builds the embedding service (with its cache), the LLM service and
// the vector index described by settings. Any failure closes what was
// already built.
func Init(ctx context.Context, settings *domain.AppSettings, opts Options) (*InitResult, error) {
	result := &InitResult{}

	embedder, err := CreateEmbeddingService(settings.Embedding, settings.Indexing.EmbeddingRPS)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if !opts.SkipPing {
		if err := ping(ctx, embedder.Ping); err != nil {
			embedder.Close()
			return nil, fmt.Errorf("%w: service unreachable (%w). Check the [embedding] section of your config",
				domain.ErrEmbeddingUnavailable, err)
		}
	}

	cache, err := CreateEmbeddingCache(ctx, settings.Cache)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("embedding cache disabled: %v", err))
		logger.Warn("embedding cache disabled: %v", err)
	}
	if cache != nil {
		embedder = cached.New(embedder, cache)
	}
	result.EmbeddingService = embedder

	dims := settings.Embedding.ResolvedDimensions()
	if dims == 0 {
		dims = embedder.Dimensions()
	}
	index, err := CreateVectorIndex(ctx, settings.VectorStore, dims)
	if err != nil {
		result.Close()
		return nil, err
	}
	result.VectorIndex = index

	if opts.SkipLLM {
		return result, nil
	}

	llm, err := CreateLLMService(settings.LLM)
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
	if !opts.SkipPing {
		if err := ping(ctx, llm.Ping); err != nil {
			llm.Close()
			result.Close()
			return nil, fmt.Errorf("%w: service unreachable (%w). Check the [llm] section of your config",
				domain.ErrLLMUnavailable, err)
		}
	}
	result.LLMService = llm

	return result, nil
}

func ping(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return fn(ctx)
}

// CreateEmbeddingService creates the embedding service selected by settings.
// rps throttles requests when positive.
func CreateEmbeddingService(settings domain.EmbeddingSettings, rps float64) (driven.EmbeddingService, error) {
	if !settings.Provider.IsValid() {
		return nil, fmt.Errorf("embedding provider %q: %w", settings.Provider, domain.ErrUnsupportedType)
	}
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%s requires an API key (embedding.api_key): %w", settings.Provider, domain.ErrInvalidInput)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings, rps), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings, rps)

	default:
		// Groq and Anthropic do not serve embeddings.
		return nil, fmt.Errorf("%s does not support embeddings, use ollama or openai: %w",
			settings.Provider, domain.ErrUnsupportedType)
	}
}

// CreateLLMService creates the LLM service selected by settings.
func CreateLLMService(settings domain.LLMSettings) (driven.LLMService, error) {
	if !settings.Provider.IsValid() {
		return nil, fmt.Errorf("llm provider %q: %w", settings.Provider, domain.ErrUnsupportedType)
	}
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%s requires an API key (llm.api_key): %w", settings.Provider, domain.ErrInvalidInput)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaLLM(settings), nil

	case domain.AIProviderOpenAI:
		return llmOrNil(openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		}))

	case domain.AIProviderGroq:
		baseURL := settings.BaseURL
		if baseURL == "" {
			baseURL = openaillm.GroqBaseURL
		}
		model := settings.Model
		if model == "" {
			model = domain.DefaultLLMModels()[domain.AIProviderGroq]
		}
		return llmOrNil(openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: baseURL,
			Model:   model,
			Name:    string(domain.AIProviderGroq),
		}))

	case domain.AIProviderAnthropic:
		svc, err := anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("llm provider %q: %w", settings.Provider, domain.ErrUnsupportedType)
	}
}

// CreateEmbeddingCache creates the cache selected by settings.
// CacheNone returns a nil cache and no error.
func CreateEmbeddingCache(ctx context.Context, settings domain.CacheSettings) (driven.EmbeddingCache, error) {
	switch settings.Type {
	case domain.CacheNone, "":
		return nil, nil

	case domain.CacheMemory:
		return memorycache.New(memorycache.DefaultMaxEntries), nil

	case domain.CacheRedis:
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		c, err := rediscache.New(ctx, rediscache.Config{
			Addr: settings.RedisAddr,
			DB:   settings.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return c, nil

	default:
		return nil, fmt.Errorf("cache %q: %w", settings.Type, domain.ErrUnsupportedType)
	}
}

// CreateVectorIndex opens the vector index selected by settings.
// A corrupt sqlite store is fatal and returned unchanged.
func CreateVectorIndex(ctx context.Context, settings domain.VectorStoreSettings, dimensions int) (driven.VectorIndex, error) {
	if dimensions < 1 {
		return nil, fmt.Errorf("%w: unknown embedding dimensions, set embedding.dimensions", domain.ErrVectorIndexUnavailable)
	}

	switch settings.Type {
	case domain.VectorStoreSQLite, "":
		idx, err := sqlite.NewVectorIndex(settings.Path, dimensions)
		if err != nil {
			if errors.Is(err, domain.ErrStoreCorruption) || errors.Is(err, domain.ErrDimensionMismatch) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		return idx, nil

	case domain.VectorStoreMemory:
		return memory.NewVectorIndex(dimensions), nil

	case domain.VectorStoreMilvus:
		idx, err := milvus.NewVectorIndex(ctx, milvus.Config{
			Address:    settings.Address,
			Username:   settings.Username,
			Password:   settings.Password,
			Database:   settings.Database,
			Collection: settings.Collection,
			Dimensions: dimensions,
		})
		if err != nil {
			if errors.Is(err, domain.ErrDimensionMismatch) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("vector store %q: %w", settings.Type, domain.ErrUnsupportedType)
	}
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings domain.EmbeddingSettings, rps float64) driven.EmbeddingService {
	dimensions := settings.ResolvedDimensions()
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Dimensions:        dimensions,
		RequestsPerSecond: rps,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings domain.EmbeddingSettings, rps float64) (driven.EmbeddingService, error) {
	svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:            settings.APIKey,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Dimensions:        settings.ResolvedDimensions(),
		RequestsPerSecond: rps,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// llmOrNil keeps a failed constructor from returning a typed nil interface.
func llmOrNil(svc *openaillm.LLMService, err error) (driven.LLMService, error) {
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// createOllamaLLM creates an Ollama LLM service.
func createOllamaLLM(settings domain.LLMSettings) driven.LLMService {
	return ollamallm.NewLLMService(ollamallm.LLMConfig{
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
}
