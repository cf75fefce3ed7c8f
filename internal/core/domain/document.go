package domain

import "time"

// DocumentType tags the format a document was ingested from.
type DocumentType string

// Supported document types.
const (
	DocumentTypePDF      DocumentType = "pdf"
	DocumentTypeText     DocumentType = "text"
	DocumentTypeMarkdown DocumentType = "markdown"
	DocumentTypeHTML     DocumentType = "html"
	DocumentTypeDOCX     DocumentType = "docx"
)

// String returns the string representation.
func (t DocumentType) String() string {
	return string(t)
}

// Document represents an ingested document.
// It is the canonical representation after normalisation and is
// immutable once handed to the indexing pipeline.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// URI is the original location (file path or upload name).
	URI string

	// Title is the human-readable title.
	Title string

	// Type is the format the document was extracted from.
	Type DocumentType

	// Content is the full extracted text before chunking.
	Content string

	// Pages is the number of pages for paginated formats, zero otherwise.
	Pages int

	// Metadata contains arbitrary key-value pairs set by the normaliser.
	Metadata map[string]any

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time
}

// Chunk represents a contiguous span of a document's text.
// Chunks from one document, joined in Sequence order, reconstruct the
// document text up to whitespace at the boundaries.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// DocumentType is copied from the parent Document.
	DocumentType DocumentType

	// Sequence is the ordinal position within the document, starting at 0.
	Sequence int

	// Content is the text content of this chunk.
	Content string

	// Metadata contains chunk-level key-value pairs used for filtering.
	Metadata map[string]string
}

// Chunk metadata keys written by the indexing pipeline.
const (
	MetaSource       = "source"
	MetaDocumentID   = "document_id"
	MetaDocumentType = "document_type"
	MetaSequence     = "sequence"
	MetaTitle        = "title"
)
