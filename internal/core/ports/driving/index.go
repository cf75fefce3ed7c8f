package driving

import (
	"context"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// IndexReport summarises the outcome of indexing one document.
type IndexReport struct {
	// DocumentID is the identifier assigned to the document.
	DocumentID string

	// URI is the path or name the document was loaded from.
	URI string

	// Title is the document title.
	Title string

	// Type is the detected document type.
	Type domain.DocumentType

	// Chunks is the number of entries written to the vector index.
	Chunks int

	// Warnings are non-fatal issues, such as a document without text.
	Warnings []string
}

// IndexService ingests documents into the vector index.
type IndexService interface {
	// IndexFile loads, chunks, embeds and stores the file at path.
	IndexFile(ctx context.Context, path string) (*IndexReport, error)

	// IndexBytes indexes an in-memory document. name is used for the title,
	// MIME detection and the source metadata.
	IndexBytes(ctx context.Context, name string, content []byte) (*IndexReport, error)

	// IndexFiles indexes several files concurrently. Reports are returned in
	// input order; a failing file does not stop the others.
	IndexFiles(ctx context.Context, paths []string) ([]*IndexReport, error)

	// Supports reports whether a file name has a supported document type.
	Supports(name string) bool
}
