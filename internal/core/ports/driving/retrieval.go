package driving

import (
	"context"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// RetrievalService finds the chunks most useful for answering a query.
type RetrievalService interface {
	// Retrieve runs Maximum Marginal Relevance selection over the nearest
	// neighbours of query. An empty index yields an empty result, not an error.
	Retrieve(ctx context.Context, query string, opts domain.RetrievalOptions) (*domain.RetrievalResult, error)
}
