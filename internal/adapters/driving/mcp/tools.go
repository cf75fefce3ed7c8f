package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	ThreadID string `json:"thread_id,omitempty" jsonschema:"conversation thread; a new one is started when empty"`
	Question string `json:"question" jsonschema:"the question to answer from the indexed documents"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	ThreadID  string         `json:"thread_id"`
	Answer    string         `json:"answer"`
	NoContext bool           `json:"no_context"`
	Model     string         `json:"model"`
	Sources   []SourceOutput `json:"sources"`
}

// SourceOutput is a chunk used as context for an answer.
type SourceOutput struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Title      string  `json:"title,omitempty"`
	Sequence   int     `json:"sequence"`
	Relevance  float64 `json:"relevance"`
	Content    string  `json:"content,omitempty"`
}

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query      string   `json:"query" jsonschema:"the text to find supporting passages for"`
	TopK       int      `json:"top_k,omitempty" jsonschema:"number of passages to return (default 6)"`
	FetchK     int      `json:"fetch_k,omitempty" jsonschema:"number of nearest candidates to diversify (default 20)"`
	LambdaMult *float64 `json:"lambda_mult,omitempty" jsonschema:"relevance (1) versus diversity (0) trade-off (default 0.7)"`
	DocumentID string   `json:"document_id,omitempty" jsonschema:"restrict results to one document"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Passages []SourceOutput `json:"passages"`
	Count    int            `json:"count"`
}

// IndexDocumentInput is the input schema for the index_document tool.
type IndexDocumentInput struct {
	Path string `json:"path" jsonschema:"absolute path of a PDF, DOCX, HTML, Markdown or text file"`
}

// IndexDocumentOutput is the output schema for the index_document tool.
type IndexDocumentOutput struct {
	DocumentID string   `json:"document_id"`
	Title      string   `json:"title"`
	Type       string   `json:"type"`
	Chunks     int      `json:"chunks"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ListThreadsInput is the input schema for the list_threads tool.
type ListThreadsInput struct{}

// ListThreadsOutput is the output schema for the list_threads tool.
type ListThreadsOutput struct {
	Threads []string `json:"threads"`
}

// ThreadHistoryInput is the input schema for the thread_history tool.
type ThreadHistoryInput struct {
	ThreadID string `json:"thread_id" jsonschema:"the thread to read"`
}

// ThreadHistoryOutput is the output schema for the thread_history tool.
type ThreadHistoryOutput struct {
	ThreadID string          `json:"thread_id"`
	Messages []MessageOutput `json:"messages"`
}

// MessageOutput is one committed message.
type MessageOutput struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the indexed documents, continuing a conversation thread",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Return the passages most useful for answering a query, diversified with MMR",
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_document",
		Description: "Index a document from the local filesystem",
	}, s.handleIndexDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_threads",
		Description: "List conversation threads of this server",
	}, s.handleListThreads)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "thread_history",
		Description: "Return the messages of a conversation thread",
	}, s.handleThreadHistory)
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	threadID := strings.TrimSpace(input.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	answer, err := s.ports.Conversation.Ask(ctx, threadID, input.Question)
	if err != nil {
		return nil, AskOutput{}, toolError(err)
	}

	output := AskOutput{
		ThreadID:  answer.ThreadID,
		Answer:    answer.Content,
		NoContext: answer.NoContext,
		Model:     answer.Model,
		Sources:   make([]SourceOutput, len(answer.Sources)),
	}
	for i, c := range answer.Sources {
		output.Sources[i] = sourceOutput(c, false)
	}
	return nil, output, nil
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	opts := s.ports.retrievalDefaults()
	if input.TopK > 0 {
		opts.TopK = input.TopK
		if input.FetchK <= 0 && opts.FetchK < opts.TopK {
			opts.FetchK = opts.TopK
		}
	}
	if input.FetchK > 0 {
		opts.FetchK = input.FetchK
	}
	if input.LambdaMult != nil {
		opts.LambdaMult = *input.LambdaMult
	}
	if input.DocumentID != "" {
		opts.Filter = domain.MetadataFilter{domain.MetaDocumentID: input.DocumentID}
	}

	result, err := s.ports.Retrieval.Retrieve(ctx, input.Query, opts)
	if err != nil {
		return nil, RetrieveOutput{}, toolError(err)
	}

	output := RetrieveOutput{
		Passages: make([]SourceOutput, len(result.Chunks)),
		Count:    len(result.Chunks),
	}
	for i, c := range result.Chunks {
		output.Passages[i] = sourceOutput(c, true)
	}
	return nil, output, nil
}

// handleIndexDocument handles the index_document tool invocation.
func (s *Server) handleIndexDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexDocumentInput,
) (*mcp.CallToolResult, IndexDocumentOutput, error) {
	if s.ports.Index == nil {
		return nil, IndexDocumentOutput{}, toolError(errIndexingDisabled)
	}

	report, err := s.ports.Index.IndexFile(ctx, input.Path)
	if err != nil {
		return nil, IndexDocumentOutput{}, toolError(err)
	}

	return nil, IndexDocumentOutput{
		DocumentID: report.DocumentID,
		Title:      report.Title,
		Type:       report.Type.String(),
		Chunks:     report.Chunks,
		Warnings:   report.Warnings,
	}, nil
}

// handleListThreads handles the list_threads tool invocation.
func (s *Server) handleListThreads(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListThreadsInput,
) (*mcp.CallToolResult, ListThreadsOutput, error) {
	threads, err := s.ports.Conversation.Threads(ctx)
	if err != nil {
		return nil, ListThreadsOutput{}, toolError(err)
	}
	if threads == nil {
		threads = []string{}
	}
	return nil, ListThreadsOutput{Threads: threads}, nil
}

// handleThreadHistory handles the thread_history tool invocation.
func (s *Server) handleThreadHistory(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ThreadHistoryInput,
) (*mcp.CallToolResult, ThreadHistoryOutput, error) {
	history, err := s.ports.Conversation.History(ctx, input.ThreadID)
	if err != nil {
		return nil, ThreadHistoryOutput{}, toolError(err)
	}

	output := ThreadHistoryOutput{
		ThreadID: input.ThreadID,
		Messages: messagesOutput(history),
	}
	return nil, output, nil
}

func sourceOutput(c domain.RetrievedChunk, withContent bool) SourceOutput {
	out := SourceOutput{
		DocumentID: c.Chunk.DocumentID,
		Source:     c.Chunk.Metadata[domain.MetaSource],
		Title:      c.Chunk.Metadata[domain.MetaTitle],
		Sequence:   c.Chunk.Sequence,
		Relevance:  c.Relevance,
	}
	if withContent {
		out.Content = c.Chunk.Content
	}
	return out
}

func messagesOutput(history []domain.Message) []MessageOutput {
	out := make([]MessageOutput, len(history))
	for i, m := range history {
		out[i] = MessageOutput{
			Role:      m.Role.String(),
			Content:   m.Content,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return out
}
