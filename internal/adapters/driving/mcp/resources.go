package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for pdfqa resources.
	uriScheme = "pdfqa://"

	jsonMIME = "application/json"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "threads",
		Name:        "threads",
		Description: "Conversation threads of this server",
		MIMEType:    jsonMIME,
	}, s.handleThreadsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "threads/{threadId}",
		Name:        "thread-history",
		Description: "Committed messages of a conversation thread",
		MIMEType:    jsonMIME,
	}, s.handleThreadResource)
}

// handleThreadsResource returns the known thread identifiers.
func (s *Server) handleThreadsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	threads, err := s.ports.Conversation.Threads(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	if threads == nil {
		threads = []string{}
	}
	return jsonResult(req.Params.URI, threads)
}

// handleThreadResource returns the history of one thread.
func (s *Server) handleThreadResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// pdfqa://threads/{threadId}
	threadID := extractThreadID(req.Params.URI)
	if threadID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	history, err := s.ports.Conversation.History(ctx, threadID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("reading thread: %w", err)
	}

	return jsonResult(req.Params.URI, ThreadHistoryOutput{
		ThreadID: threadID,
		Messages: messagesOutput(history),
	})
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: jsonMIME,
			Text:     string(data),
		}},
	}, nil
}

// extractThreadID extracts the thread ID from a URI like pdfqa://threads/{threadId}.
func extractThreadID(uri string) string {
	const prefix = uriScheme + "threads/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
