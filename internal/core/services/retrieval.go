package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
	"github.com/custodia-labs/pdfqa/internal/logger"
	"github.com/custodia-labs/pdfqa/internal/resilience"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// RetrievalService selects context chunks for a query with MMR.
type RetrievalService struct {
	embedder    driven.EmbeddingService
	index       driven.VectorIndex
	embedPolicy *resilience.Policy
	storePolicy *resilience.Policy
}

// RetrievalOption configures a RetrievalService.
type RetrievalOption func(*RetrievalService)

// WithRetrievalPolicies sets the retry policies for embedding and search calls.
func WithRetrievalPolicies(embed, store *resilience.Policy) RetrievalOption {
	return func(s *RetrievalService) {
		s.embedPolicy = embed
		s.storePolicy = store
	}
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	opts ...RetrievalOption,
) *RetrievalService {
	s := &RetrievalService{
		embedder: embedder,
		index:    index,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve embeds query, fetches opts.FetchK nearest chunks and returns up to
// opts.TopK of them in MMR selection order.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, opts domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	logger.Section("Retrieval")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Query: %q top_k=%d fetch_k=%d lambda=%.2f filter=%v",
		query, opts.TopK, opts.FetchK, opts.LambdaMult, opts.Filter)

	vector, err := resilience.Do(ctx, s.embedPolicy, func(ctx context.Context) ([]float32, error) {
		return s.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := resilience.Do(ctx, s.storePolicy, func(ctx context.Context) ([]domain.ScoredEntry, error) {
		return s.index.Search(ctx, vector, opts.FetchK, opts.Filter)
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	logger.Debug("%d candidates", len(candidates))

	result := &domain.RetrievalResult{Query: query}
	if len(candidates) == 0 {
		return result, nil
	}
	result.Chunks = selectMMR(candidates, opts.TopK, opts.LambdaMult)
	logger.Debug("Selected %d chunks", len(result.Chunks))
	return result, nil
}
