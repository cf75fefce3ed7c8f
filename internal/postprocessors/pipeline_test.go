package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// mockProcessor is a test processor that returns predefined chunks.
type mockProcessor struct {
	name   string
	chunks []domain.Chunk
	err    error
	calls  int
}

func (m *mockProcessor) Name() string {
	return m.name
}

func (m *mockProcessor) Process(_ context.Context, _ *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.chunks != nil {
		return m.chunks, nil
	}
	return chunks, nil
}

func TestPipeline_Add(t *testing.T) {
	p := NewPipeline()
	p.Add(&mockProcessor{name: "semantic"})
	p.Add(&mockProcessor{name: "metadata"})

	if p.Len() != 2 {
		t.Fatalf("expected 2 processors, got %d", p.Len())
	}
	names := p.Names()
	if names[0] != "semantic" || names[1] != "metadata" {
		t.Errorf("unexpected order: %v", names)
	}
}

func TestPipeline_Process_NilDocument(t *testing.T) {
	p := NewPipeline()

	_, err := p.Process(context.Background(), nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPipeline_Process_EmptyPipeline(t *testing.T) {
	p := NewPipeline()
	doc := &domain.Document{ID: "doc-1", Content: "Revenue grew."}

	chunks, err := p.Process(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks != nil {
		t.Errorf("expected nil chunks from empty pipeline, got %v", chunks)
	}
}

func TestPipeline_Process_LaterProcessorSeesEarlierChunks(t *testing.T) {
	segmented := []domain.Chunk{
		{Content: "Revenue grew."},
		{Content: "Rain is expected."},
	}
	annotate := &mockProcessor{name: "metadata"}

	p := NewPipeline(&mockProcessor{name: "semantic", chunks: segmented}, annotate)
	doc := &domain.Document{ID: "doc-1", Content: "Revenue grew. Rain is expected."}

	chunks, err := p.Process(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if annotate.calls != 1 {
		t.Errorf("expected annotate to run once, ran %d times", annotate.calls)
	}
}

func TestPipeline_Process_ProcessorError(t *testing.T) {
	expectedErr := errors.New("processor failed")
	after := &mockProcessor{name: "after"}

	p := NewPipeline(&mockProcessor{name: "failing", err: expectedErr}, after)
	doc := &domain.Document{ID: "doc-1", Content: "text"}

	_, err := p.Process(context.Background(), doc)
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected wrapped error, got: %v", err)
	}
	if after.calls != 0 {
		t.Error("expected pipeline to stop at the failing processor")
	}
}

func TestPipeline_Process_CancelledContext(t *testing.T) {
	proc := &mockProcessor{name: "semantic"}
	p := NewPipeline(proc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, &domain.Document{ID: "doc-1", Content: "text"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if proc.calls != 0 {
		t.Error("expected no processor to run")
	}
}
