// Package metadata provides the chunk annotation processor and the
// deterministic chunk identifiers shared by the chunkers.
package metadata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// chunkNamespace scopes chunk identifiers generated by pdfqa.
var chunkNamespace = uuid.MustParse("6f1c2a8e-4d3b-5e7f-9a0b-1c2d3e4f5a6b")

// ChunkID returns the stable identifier of the seq-th chunk of a document.
// Re-indexing the same document yields the same IDs, so upserts overwrite.
func ChunkID(documentID string, seq int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(seq))).String()
}

// Processor annotates chunks with the metadata used for filtering and citation.
// It implements the PostProcessor interface.
type Processor struct{}

// New creates a metadata annotation processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "metadata"
}

// Process stamps each chunk with its source, document id, type, sequence and
// title. Sequences and IDs are reassigned so they are contiguous from zero.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	out := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		meta := make(map[string]string, len(c.Metadata)+5)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta[domain.MetaSource] = doc.URI
		meta[domain.MetaDocumentID] = doc.ID
		meta[domain.MetaDocumentType] = doc.Type.String()
		meta[domain.MetaSequence] = strconv.Itoa(i)
		if doc.Title != "" {
			meta[domain.MetaTitle] = doc.Title
		}

		c.ID = ChunkID(doc.ID, i)
		c.DocumentID = doc.ID
		c.DocumentType = doc.Type
		c.Sequence = i
		c.Metadata = meta
		out[i] = c
	}
	return out, nil
}
