// Package domain defines the core business entities for pdfqa.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A normalised document ready for chunking
//   - Chunk: A semantically coherent unit within a document
//   - IndexEntry: A chunk together with its embedding vector
//   - Thread: An ordered conversation history
//   - RetrievalResult: The ranked chunks returned for a question
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
