// Package sqlite provides the embedded, file-backed implementation of
// driven.VectorIndex.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Embeddings are stored as little-endian float32 blobs next to the chunk text
// and its metadata encoded as JSON. The seq column is the insertion order.
//
// # Integrity
//
// Opening an index runs PRAGMA integrity_check and validates every stored
// embedding against the configured dimensionality. Any failure is reported
// as domain.ErrStoreCorruption and the index is not opened.
//
// # Data Location
//
// By default, the database is stored at ~/.pdfqa/vectors.db
//
// # Thread Safety
//
// All operations are thread-safe. Upserts run in a single transaction, so
// readers never observe a partially written batch.
package sqlite
