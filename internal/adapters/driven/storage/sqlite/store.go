package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/rank"
	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/logger"
	"github.com/custodia-labs/pdfqa/internal/vectormath"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// DefaultFileName is the database file name inside the pdfqa directory.
const DefaultFileName = "vectors.db"

const metaDimensions = "dimensions"

// VectorIndex is a SQLite-backed vector index.
type VectorIndex struct {
	db         *sql.DB
	path       string
	dimensions int
}

// NewVectorIndex opens or creates the index at path.
// If path is empty, defaults to ~/.pdfqa/vectors.db.
//
// An existing file that fails the integrity check, holds embeddings of the
// wrong size or cannot be read as a database is reported as
// domain.ErrStoreCorruption. A file created for a different dimensionality
// is reported as domain.ErrDimensionMismatch.
func NewVectorIndex(path string, dimensions int) (*VectorIndex, error) {
	if dimensions < 1 {
		return nil, fmt.Errorf("dimensions must be positive, got %d: %w", dimensions, domain.ErrInvalidInput)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".pdfqa", DefaultFileName)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serialises writers and avoids SQLITE_BUSY on upgrade.
	db.SetMaxOpenConns(1)

	v := &VectorIndex{
		db:         db,
		path:       path,
		dimensions: dimensions,
	}

	if err := v.open(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("opened vector index %s (%d dimensions)", path, dimensions)
	return v, nil
}

func (v *VectorIndex) open() error {
	if err := v.checkIntegrity(); err != nil {
		return err
	}
	if err := v.migrate(migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if err := v.checkDimensions(); err != nil {
		return err
	}
	return v.checkEmbeddings()
}

// checkIntegrity runs PRAGMA integrity_check.
func (v *VectorIndex) checkIntegrity() error {
	rows, err := v.db.Query("PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("%s: %v: %w", v.path, err, domain.ErrStoreCorruption)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("%s: %v: %w", v.path, err, domain.ErrStoreCorruption)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: %v: %w", v.path, err, domain.ErrStoreCorruption)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: integrity check: %s: %w", v.path, strings.Join(problems, "; "), domain.ErrStoreCorruption)
	}
	return nil
}

// checkDimensions records the dimensionality of a new index and compares
// it with the configured one for an existing index.
func (v *VectorIndex) checkDimensions() error {
	_, err := v.db.Exec(
		"INSERT OR IGNORE INTO index_meta (key, value) VALUES (?, ?)",
		metaDimensions, strconv.Itoa(v.dimensions),
	)
	if err != nil {
		return fmt.Errorf("recording dimensions: %w", err)
	}

	var stored string
	if err := v.db.QueryRow("SELECT value FROM index_meta WHERE key = ?", metaDimensions).Scan(&stored); err != nil {
		return fmt.Errorf("reading dimensions: %w", err)
	}
	n, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("%s: dimensions %q: %w", v.path, stored, domain.ErrStoreCorruption)
	}
	if n != v.dimensions {
		return fmt.Errorf("%s was built with %d dimensions, configured %d: %w",
			v.path, n, v.dimensions, domain.ErrDimensionMismatch)
	}
	return nil
}

// checkEmbeddings validates the length of every stored blob.
func (v *VectorIndex) checkEmbeddings() error {
	var bad int
	var firstID sql.NullString
	err := v.db.QueryRow(
		"SELECT COUNT(*), MIN(id) FROM entries WHERE length(embedding) != ?",
		v.dimensions*4,
	).Scan(&bad, &firstID)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", v.path, err, domain.ErrStoreCorruption)
	}
	if bad > 0 {
		return fmt.Errorf("%s: %d entries with malformed embeddings (first %s): %w",
			v.path, bad, firstID.String, domain.ErrStoreCorruption)
	}
	return nil
}

// migrate runs all pending migrations.
func (v *VectorIndex) migrate(fsys fs.FS) error {
	// Ensure schema_migrations table exists
	_, err := v.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := v.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_vectors.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := v.db.Begin()
		if err != nil {
			return fmt.Errorf("starting migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// Upsert writes entries in one transaction. Existing IDs keep their seq.
func (v *VectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if err := rank.CheckEntries(entries, v.dimensions); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return v.inTx(ctx, "upsert", func(tx *sql.Tx) error {
		return writeEntries(ctx, tx, entries)
	})
}

// ReplaceDocument writes entries and drops the document's other rows in one
// transaction.
func (v *VectorIndex) ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	if err := rank.CheckDocument(documentID, entries, v.dimensions); err != nil {
		return err
	}
	return v.inTx(ctx, "replace "+documentID, func(tx *sql.Tx) error {
		if err := writeEntries(ctx, tx, entries); err != nil {
			return err
		}
		return deleteStale(ctx, tx, documentID, entries)
	})
}

func (v *VectorIndex) inTx(ctx context.Context, what string, fn func(*sql.Tx) error) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", what, err)
	}
	return nil
}

func writeEntries(ctx context.Context, tx *sql.Tx, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, document_id, doc_type, sequence, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			doc_type = excluded.doc_type,
			sequence = excluded.sequence,
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		metaJSON, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata for %s: %w", e.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			e.ID,
			e.Chunk.DocumentID,
			string(e.Chunk.DocumentType),
			e.Chunk.Sequence,
			e.Chunk.Content,
			string(metaJSON),
			vectormath.Encode(e.Vector),
		)
		if err != nil {
			return fmt.Errorf("upserting %s: %w", e.ID, err)
		}
	}
	return nil
}

// deleteStale removes rows of documentID whose IDs are not in keep.
func deleteStale(ctx context.Context, tx *sql.Tx, documentID string, keep []domain.IndexEntry) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM entries WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("listing entries of %s: %w", documentID, err)
	}
	wanted := make(map[string]bool, len(keep))
	for _, e := range keep {
		wanted[e.ID] = true
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("listing entries of %s: %w", documentID, err)
		}
		if !wanted[id] {
			stale = append(stale, id)
		}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return fmt.Errorf("listing entries of %s: %w", documentID, err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
	}
	if len(stale) > 0 {
		logger.Debug("removed %d stale entries of %s", len(stale), documentID)
	}
	return nil
}

// Search scans every entry and returns the fetchK most similar to query.
func (v *VectorIndex) Search(
	ctx context.Context,
	query []float32,
	fetchK int,
	filter domain.MetadataFilter,
) ([]domain.ScoredEntry, error) {
	if err := rank.CheckQuery(query, fetchK, v.dimensions); err != nil {
		return nil, err
	}

	rows, err := v.db.QueryContext(ctx, `
		SELECT seq, id, document_id, doc_type, sequence, content, metadata, embedding
		FROM entries
	`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	c := rank.NewCollector(query, fetchK, filter)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		c.Offer(*entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return c.Results(), nil
}

// Count returns the number of stored entries.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Dimensions returns the vector size.
func (v *VectorIndex) Dimensions() int {
	return v.dimensions
}

// Path returns the database file path.
func (v *VectorIndex) Path() string {
	return v.path
}

// Close closes the database connection.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}

func scanEntry(rows *sql.Rows) (*domain.IndexEntry, error) {
	var (
		e        domain.IndexEntry
		docType  string
		metaJSON string
		blob     []byte
	)
	err := rows.Scan(
		&e.Seq, &e.ID, &e.Chunk.DocumentID, &docType,
		&e.Chunk.Sequence, &e.Chunk.Content, &metaJSON, &blob,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning entry: %w", err)
	}

	e.Chunk.ID = e.ID
	e.Chunk.DocumentType = domain.DocumentType(docType)
	if err := json.Unmarshal([]byte(metaJSON), &e.Chunk.Metadata); err != nil {
		return nil, fmt.Errorf("entry %s metadata: %v: %w", e.ID, err, domain.ErrStoreCorruption)
	}
	e.Vector, err = vectormath.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("entry %s embedding: %w", e.ID, errors.Join(domain.ErrStoreCorruption, err))
	}
	return &e, nil
}
