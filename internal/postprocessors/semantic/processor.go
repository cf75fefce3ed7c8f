// Package semantic provides a chunking processor that places chunk
// boundaries where the meaning of adjacent sentences shifts.
//
// Each sentence is embedded together with its neighbours, the cosine
// distance between consecutive windows is measured, and a boundary is
// placed after every sentence whose distance to the next exceeds a
// percentile of the document's own distance distribution. Chunks larger
// than the configured ceiling are split further at sentence or word
// boundaries.
package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/logger"
	"github.com/custodia-labs/pdfqa/internal/postprocessors/metadata"
	"github.com/custodia-labs/pdfqa/internal/vectormath"
)

// Defaults for boundary detection.
const (
	DefaultBreakpointPercentile = 95.0
	DefaultBufferSize           = 1
	DefaultMaxChunkSize         = 2000
)

// Processor splits document content into semantically coherent chunks.
// It implements the PostProcessor interface.
type Processor struct {
	embedder     driven.EmbeddingService
	percentile   float64
	bufferSize   int
	maxChunkSize int
}

// Option configures the semantic processor.
type Option func(*Processor)

// WithBreakpointPercentile sets the distance percentile (0-100] above which
// a boundary is placed.
func WithBreakpointPercentile(p float64) Option {
	return func(proc *Processor) {
		if p > 0 && p <= 100 {
			proc.percentile = p
		}
	}
}

// WithBufferSize sets how many neighbouring sentences on each side are
// embedded together with a sentence.
func WithBufferSize(n int) Option {
	return func(proc *Processor) {
		if n >= 0 {
			proc.bufferSize = n
		}
	}
}

// WithMaxChunkSize sets the rune ceiling for a single chunk.
func WithMaxChunkSize(n int) Option {
	return func(proc *Processor) {
		if n > 0 {
			proc.maxChunkSize = n
		}
	}
}

// New creates a semantic chunker that embeds sentences with embedder.
func New(embedder driven.EmbeddingService, opts ...Option) *Processor {
	p := &Processor{
		embedder:     embedder,
		percentile:   DefaultBreakpointPercentile,
		bufferSize:   DefaultBufferSize,
		maxChunkSize: DefaultMaxChunkSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "semantic"
}

// Process segments the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	segments, err := p.Segment(ctx, doc.Content)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, len(segments))
	for i, s := range segments {
		chunks[i] = domain.Chunk{
			ID:           metadata.ChunkID(doc.ID, i),
			DocumentID:   doc.ID,
			DocumentType: doc.Type,
			Sequence:     i,
			Content:      s,
		}
	}
	return chunks, nil
}

// Segment splits text into chunk contents in document order.
// Empty or whitespace-only text is rejected with domain.ErrInvalidInput.
func (p *Processor) Segment(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrInvalidInput)
	}

	sentences := SplitSentences(text)
	if len(sentences) == 1 {
		return p.applyCeiling([][]string{sentences}), nil
	}

	if p.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	vectors, err := p.embedder.EmbedBatch(ctx, p.windows(sentences))
	if err != nil {
		return nil, fmt.Errorf("embed sentences: %w", err)
	}
	if len(vectors) != len(sentences) {
		return nil, fmt.Errorf("embed sentences: got %d vectors for %d sentences", len(vectors), len(sentences))
	}

	distances := make([]float64, len(vectors)-1)
	for i := range distances {
		distances[i] = vectormath.CosineDistance(vectors[i], vectors[i+1])
	}
	threshold := vectormath.Percentile(distances, p.percentile)

	groups := make([][]string, 0)
	start := 0
	for i, d := range distances {
		if d > threshold {
			groups = append(groups, sentences[start:i+1])
			start = i + 1
		}
	}
	groups = append(groups, sentences[start:])

	logger.Debug("semantic: %d sentences, threshold %.4f (p%.0f), %d breakpoints",
		len(sentences), threshold, p.percentile, len(groups)-1)

	return p.applyCeiling(groups), nil
}

// windows joins each sentence with its bufferSize neighbours on both sides.
func (p *Processor) windows(sentences []string) []string {
	out := make([]string, len(sentences))
	for i := range sentences {
		lo := max(0, i-p.bufferSize)
		hi := min(len(sentences), i+p.bufferSize+1)
		out[i] = strings.Join(sentences[lo:hi], " ")
	}
	return out
}

// applyCeiling joins each sentence group into chunk text, packing groups
// larger than maxChunkSize into several chunks at sentence boundaries.
func (p *Processor) applyCeiling(groups [][]string) []string {
	var out []string
	for _, group := range groups {
		var b strings.Builder
		size := 0
		flush := func() {
			if b.Len() > 0 {
				out = append(out, b.String())
				b.Reset()
				size = 0
			}
		}

		for _, s := range group {
			n := runeLen(s)
			if n > p.maxChunkSize {
				flush()
				out = append(out, splitLong(s, p.maxChunkSize)...)
				continue
			}
			if size > 0 && size+1+n > p.maxChunkSize {
				flush()
			}
			if size > 0 {
				b.WriteByte(' ')
				size++
			}
			b.WriteString(s)
			size += n
		}
		flush()
	}
	return out
}
