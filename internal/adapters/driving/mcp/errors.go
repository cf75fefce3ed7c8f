// Package mcp provides an MCP (Model Context Protocol) server adapter for pdfqa.
// It lets AI assistants ask questions about indexed documents, retrieve
// supporting passages and index new files.
package mcp

import (
	"errors"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// ErrMissingConversationService is returned when the conversation service is not provided.
var ErrMissingConversationService = errors.New("mcp: conversation service is required")

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")

// errIndexingDisabled is returned by index_document when no index service is wired.
var errIndexingDisabled = errors.New("mcp: indexing is not enabled on this server")

// ToolError is a failed tool call. Its message tells the client whether
// repeating the same call may succeed.
type ToolError struct {
	Err       error
	Retryable bool
}

func (e *ToolError) Error() string {
	if e.Retryable {
		return e.Err.Error() + " (retryable)"
	}
	return e.Err.Error()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// toolError classifies err for the client; nil stays nil.
func toolError(err error) error {
	if err == nil {
		return nil
	}
	return &ToolError{Err: err, Retryable: domain.IsRetryable(err)}
}
