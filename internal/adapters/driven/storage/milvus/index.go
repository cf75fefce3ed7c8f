// Package milvus provides a driven.VectorIndex backed by a remote Milvus
// collection.
package milvus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/rank"
	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/logger"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// Default configuration values.
const (
	DefaultAddress    = "localhost:19530"
	DefaultCollection = "pdfqa_chunks"
	DefaultTimeout    = 10 * time.Second
)

// Collection field names.
const (
	fieldID        = "id"
	fieldSeq       = "seq"
	fieldDocument  = "document_id"
	fieldSequence  = "sequence"
	fieldContent   = "content"
	fieldMetadata  = "metadata"
	fieldEmbedding = "embedding"

	maxIDLen      = 64
	maxContentLen = 65535
)

var outputFields = []string{
	fieldSeq, fieldDocument, fieldSequence, fieldContent, fieldMetadata, fieldEmbedding,
}

// Config holds configuration for the Milvus vector index.
type Config struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Dimensions int

	// Timeout bounds connection and collection setup.
	Timeout time.Duration
}

// VectorIndex stores entries in a Milvus collection using the COSINE metric.
type VectorIndex struct {
	client     *milvusclient.Client
	collection string
	dimensions int

	// seq assignment is process-local and monotonic
	seqMu   sync.Mutex
	lastSeq int64
}

// NewVectorIndex connects to Milvus and ensures the collection exists and is loaded.
func NewVectorIndex(ctx context.Context, cfg Config) (*VectorIndex, error) {
	if cfg.Dimensions < 1 {
		return nil, fmt.Errorf("milvus: dimensions must be positive: %w", domain.ErrInvalidInput)
	}
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("milvus: connecting to %s: %w", cfg.Address, joinTransient(err))
	}

	v := &VectorIndex{
		client:     c,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
	}
	if err := v.ensureCollection(ctx); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}

	logger.Debug("milvus collection %s ready at %s", cfg.Collection, cfg.Address)
	return v, nil
}

func (v *VectorIndex) ensureCollection(ctx context.Context) error {
	exists, err := v.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(v.collection))
	if err != nil {
		return fmt.Errorf("milvus: checking collection: %w", joinTransient(err))
	}

	if exists {
		if err := v.checkSchema(ctx); err != nil {
			return err
		}
	} else if err := v.createCollection(ctx); err != nil {
		return err
	}

	loadTask, err := v.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(v.collection))
	if err != nil {
		return fmt.Errorf("milvus: loading collection: %w", joinTransient(err))
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("milvus: waiting for collection load: %w", joinTransient(err))
	}
	return nil
}

func (v *VectorIndex) checkSchema(ctx context.Context) error {
	coll, err := v.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(v.collection))
	if err != nil {
		return fmt.Errorf("milvus: describing collection: %w", joinTransient(err))
	}
	for _, f := range coll.Schema.Fields {
		if f.Name != fieldEmbedding {
			continue
		}
		dim, err := f.GetDim()
		if err != nil {
			return fmt.Errorf("milvus: collection %s: %v: %w", v.collection, err, domain.ErrStoreCorruption)
		}
		if int(dim) != v.dimensions {
			return fmt.Errorf("milvus: collection %s has %d dimensions, configured %d: %w",
				v.collection, dim, v.dimensions, domain.ErrDimensionMismatch)
		}
		return nil
	}
	return fmt.Errorf("milvus: collection %s has no %s field: %w", v.collection, fieldEmbedding, domain.ErrStoreCorruption)
}

func (v *VectorIndex) createCollection(ctx context.Context) error {
	schema := entity.NewSchema().
		WithName(v.collection).
		WithDescription("pdfqa document chunks").
		WithField(entity.NewField().
			WithName(fieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxIDLen).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(fieldSeq).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().
			WithName(fieldDocument).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxIDLen)).
		WithField(entity.NewField().WithName(fieldSequence).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().
			WithName(fieldContent).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxContentLen)).
		WithField(entity.NewField().WithName(fieldMetadata).WithDataType(entity.FieldTypeJSON)).
		WithField(entity.NewField().
			WithName(fieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(v.dimensions)))

	if err := v.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(v.collection, schema)); err != nil {
		return fmt.Errorf("milvus: creating collection: %w", joinTransient(err))
	}

	idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
	task, err := v.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(v.collection, fieldEmbedding, idx))
	if err != nil {
		return fmt.Errorf("milvus: creating index: %w", joinTransient(err))
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("milvus: waiting for index: %w", joinTransient(err))
	}
	return nil
}

// Upsert writes entries column-wise and flushes so they are searchable.
// Entries that already exist keep their stored seq.
func (v *VectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if err := rank.CheckEntries(entries, v.dimensions); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := v.write(ctx, entries); err != nil {
		return err
	}
	return v.flush(ctx)
}

// ReplaceDocument upserts entries before deleting the document's other
// entities, so a concurrent search sees the new chunks plus, briefly,
// stale ones, and never an empty document.
func (v *VectorIndex) ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	if err := rank.CheckDocument(documentID, entries, v.dimensions); err != nil {
		return err
	}
	if len(entries) > 0 {
		if err := v.write(ctx, entries); err != nil {
			return err
		}
	}

	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	if _, err := v.client.Delete(ctx, milvusclient.NewDeleteOption(v.collection).
		WithExpr(staleExpr(documentID, ids))); err != nil {
		return fmt.Errorf("milvus: delete stale entries of %s: %w", documentID, joinTransient(err))
	}
	return v.flush(ctx)
}

func (v *VectorIndex) write(ctx context.Context, entries []domain.IndexEntry) error {
	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	existing, err := v.existingSeqs(ctx, ids)
	if err != nil {
		return err
	}

	cols, err := v.columns(entries, existing)
	if err != nil {
		return err
	}

	if _, err := v.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(v.collection, cols...)); err != nil {
		return fmt.Errorf("milvus: upsert: %w", joinTransient(err))
	}
	return nil
}

func (v *VectorIndex) flush(ctx context.Context) error {
	flushTask, err := v.client.Flush(ctx, milvusclient.NewFlushOption(v.collection))
	if err != nil {
		return fmt.Errorf("milvus: flush: %w", joinTransient(err))
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("milvus: waiting for flush: %w", joinTransient(err))
	}
	return nil
}

func (v *VectorIndex) existingSeqs(ctx context.Context, ids []string) (map[string]int64, error) {
	rs, err := v.client.Query(ctx, milvusclient.NewQueryOption(v.collection).
		WithFilter(inExpr(fieldID, ids)).
		WithOutputFields(fieldID, fieldSeq))
	if err != nil {
		return nil, fmt.Errorf("milvus: querying existing entries: %w", joinTransient(err))
	}

	idCol, _ := rs.GetColumn(fieldID).(*column.ColumnVarChar)
	seqCol, _ := rs.GetColumn(fieldSeq).(*column.ColumnInt64)
	out := make(map[string]int64)
	if idCol == nil || seqCol == nil {
		return out, nil
	}
	for i, id := range idCol.Data() {
		out[id] = seqCol.Data()[i]
	}
	return out, nil
}

// nextSeq returns a value greater than any previously returned by this process.
func (v *VectorIndex) nextSeq() int64 {
	v.seqMu.Lock()
	defer v.seqMu.Unlock()
	now := time.Now().UnixNano()
	if now <= v.lastSeq {
		now = v.lastSeq + 1
	}
	v.lastSeq = now
	return now
}

func (v *VectorIndex) columns(entries []domain.IndexEntry, existing map[string]int64) ([]column.Column, error) {
	n := len(entries)
	ids := make([]string, n)
	seqs := make([]int64, n)
	docs := make([]string, n)
	sequences := make([]int64, n)
	contents := make([]string, n)
	metas := make([][]byte, n)
	vectors := make([][]float32, n)

	for i, e := range entries {
		meta, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return nil, fmt.Errorf("milvus: marshalling metadata for %s: %w", e.ID, err)
		}
		if len(e.Chunk.Content) > maxContentLen {
			return nil, fmt.Errorf("milvus: entry %s content exceeds %d bytes: %w", e.ID, maxContentLen, domain.ErrInvalidInput)
		}
		seq, ok := existing[e.ID]
		if !ok {
			seq = v.nextSeq()
			existing[e.ID] = seq
		}

		ids[i] = e.ID
		seqs[i] = seq
		docs[i] = e.Chunk.DocumentID
		sequences[i] = int64(e.Chunk.Sequence)
		contents[i] = e.Chunk.Content
		metas[i] = meta
		vectors[i] = e.Vector
	}

	return []column.Column{
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnInt64(fieldSeq, seqs),
		column.NewColumnVarChar(fieldDocument, docs),
		column.NewColumnInt64(fieldSequence, sequences),
		column.NewColumnVarChar(fieldContent, contents),
		column.NewColumnJSONBytes(fieldMetadata, metas),
		column.NewColumnFloatVector(fieldEmbedding, v.dimensions, vectors),
	}, nil
}

// Search runs an ANN search with the metadata filter pushed down as an
// expression. Results are re-sorted so equal scores follow insertion order.
func (v *VectorIndex) Search(
	ctx context.Context,
	query []float32,
	fetchK int,
	filter domain.MetadataFilter,
) ([]domain.ScoredEntry, error) {
	if err := rank.CheckQuery(query, fetchK, v.dimensions); err != nil {
		return nil, err
	}

	opt := milvusclient.NewSearchOption(v.collection, fetchK, []entity.Vector{entity.FloatVector(query)}).
		WithANNSField(fieldEmbedding).
		WithSearchParam("ef", strconv.Itoa(searchEF(fetchK))).
		WithOutputFields(outputFields...)
	if expr := filterExpr(filter); expr != "" {
		opt = opt.WithFilter(expr)
	}

	results, err := v.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("milvus: search: %w", joinTransient(err))
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	out, err := parseResults(rs.IDs, rs.Fields, rs.Scores, rs.ResultCount)
	if err != nil {
		return nil, err
	}
	rank.Sort(out)
	return out, nil
}

// Count returns the number of live entities.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	rs, err := v.client.Query(ctx, milvusclient.NewQueryOption(v.collection).WithOutputFields("count(*)"))
	if err != nil {
		return 0, fmt.Errorf("milvus: count: %w", joinTransient(err))
	}
	col, ok := rs.GetColumn("count(*)").(*column.ColumnInt64)
	if !ok || len(col.Data()) == 0 {
		return 0, nil
	}
	return int(col.Data()[0]), nil
}

// Dimensions returns the vector size.
func (v *VectorIndex) Dimensions() int {
	return v.dimensions
}

// Close closes the Milvus connection.
func (v *VectorIndex) Close() error {
	return v.client.Close(context.Background())
}

func parseResults(ids column.Column, fields []column.Column, scores []float32, n int) ([]domain.ScoredEntry, error) {
	idCol, ok := ids.(*column.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("milvus: unexpected id column %T: %w", ids, domain.ErrStoreCorruption)
	}

	out := make([]domain.ScoredEntry, n)
	for i := 0; i < n; i++ {
		out[i].Entry.ID = idCol.Data()[i]
		out[i].Entry.Chunk.ID = idCol.Data()[i]
		out[i].Score = float64(scores[i])
	}

	for _, field := range fields {
		switch col := field.(type) {
		case *column.ColumnVarChar:
			for i := 0; i < n; i++ {
				switch col.Name() {
				case fieldDocument:
					out[i].Entry.Chunk.DocumentID = col.Data()[i]
				case fieldContent:
					out[i].Entry.Chunk.Content = col.Data()[i]
				}
			}
		case *column.ColumnInt64:
			for i := 0; i < n; i++ {
				switch col.Name() {
				case fieldSeq:
					out[i].Entry.Seq = col.Data()[i]
				case fieldSequence:
					out[i].Entry.Chunk.Sequence = int(col.Data()[i])
				}
			}
		case *column.ColumnJSONBytes:
			for i := 0; i < n; i++ {
				var meta map[string]string
				if err := json.Unmarshal(col.Data()[i], &meta); err != nil {
					return nil, fmt.Errorf("milvus: entry %s metadata: %v: %w", out[i].Entry.ID, err, domain.ErrStoreCorruption)
				}
				out[i].Entry.Chunk.Metadata = meta
			}
		case *column.ColumnFloatVector:
			for i := 0; i < n; i++ {
				out[i].Entry.Vector = col.Data()[i]
			}
		}
	}

	for i := range out {
		if t, ok := out[i].Entry.Chunk.Metadata[domain.MetaDocumentType]; ok {
			out[i].Entry.Chunk.DocumentType = domain.DocumentType(t)
		}
	}
	return out, nil
}

// filterExpr renders a metadata filter as a Milvus JSON-field expression.
// Keys are sorted so the expression is deterministic.
func filterExpr(filter domain.MetadataFilter) string {
	if filter.IsEmpty() {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s[%s] == %s", fieldMetadata, strconv.Quote(k), strconv.Quote(filter[k]))
	}
	return strings.Join(parts, " and ")
}

func inExpr(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return fmt.Sprintf("%s in [%s]", field, strings.Join(quoted, ", "))
}

// staleExpr selects the entities of documentID not listed in keep.
func staleExpr(documentID string, keep []string) string {
	expr := fmt.Sprintf("%s == %s", fieldDocument, strconv.Quote(documentID))
	if len(keep) == 0 {
		return expr
	}
	return expr + " and not (" + inExpr(fieldID, keep) + ")"
}

// joinTransient marks remote failures as retryable unless the caller cancelled.
func joinTransient(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(domain.ErrTransient, err)
}

// searchEF sizes the HNSW candidate list; Milvus requires ef >= k.
func searchEF(k int) int {
	return max(64, k)
}
