// Package chunker provides a fixed-size text chunking processor.
// It is the alternative to semantic chunking for documents where
// embedding every sentence is too expensive.
package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/postprocessors/metadata"
)

// DefaultChunkSize is the default number of runes per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of overlapping runes.
const DefaultChunkOverlap = 100

// Processor splits document content into fixed-size windows.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in runes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in runes.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process splits the document content into overlapping windows. A window
// ends at the last whitespace before the size limit when there is one, so
// words are not cut in half.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrInvalidInput)
	}

	runes := []rune(doc.Content)
	step := p.chunkSize - p.overlap
	chunks := make([]domain.Chunk, 0, len(runes)/step+1)

	for start := 0; start < len(runes); {
		end := min(start+p.chunkSize, len(runes))
		if end < len(runes) {
			for k := end; k > start+step; k-- {
				if unicode.IsSpace(runes[k]) {
					end = k
					break
				}
			}
		}

		if content := strings.TrimSpace(string(runes[start:end])); content != "" {
			seq := len(chunks)
			chunks = append(chunks, domain.Chunk{
				ID:           metadata.ChunkID(doc.ID, seq),
				DocumentID:   doc.ID,
				DocumentType: doc.Type,
				Sequence:     seq,
				Content:      content,
			})
		}

		if end == len(runes) {
			break
		}
		next := max(end-p.overlap, start+1)
		for next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}

	return chunks, nil
}
