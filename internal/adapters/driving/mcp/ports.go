package mcp

import (
	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Conversation answers questions within threads.
	Conversation driving.ConversationService

	// Retrieval returns supporting passages without generation.
	Retrieval driving.RetrievalService

	// Index ingests documents. Optional; index_document fails without it.
	Index driving.IndexService

	// Defaults are the retrieval parameters used when a tool call omits them.
	Defaults domain.RetrievalOptions
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Conversation == nil {
		return ErrMissingConversationService
	}
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}

// retrievalDefaults returns Defaults, or the built-in defaults when unset.
func (p *Ports) retrievalDefaults() domain.RetrievalOptions {
	if p.Defaults.TopK == 0 {
		return domain.DefaultRetrievalOptions()
	}
	return p.Defaults
}
