package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
	"github.com/custodia-labs/pdfqa/internal/logger"
	"github.com/custodia-labs/pdfqa/internal/normalisers"
	"github.com/custodia-labs/pdfqa/internal/resilience"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

const (
	defaultIndexConcurrency = 2
	embedBatchSize          = 64
)

// Warnings attached to reports of documents that produced nothing to index.
const (
	warnNoText   = "document contains no extractable text"
	warnNoChunks = "document produced no chunks"
)

// IndexService ingests documents: normalise, chunk, embed, upsert.
type IndexService struct {
	registry    driven.NormaliserRegistry
	pipeline    driven.PostProcessorPipeline
	embedder    driven.EmbeddingService
	index       driven.VectorIndex
	embedPolicy *resilience.Policy
	storePolicy *resilience.Policy
	concurrency int
}

// IndexOption configures an IndexService.
type IndexOption func(*IndexService)

// WithIndexPolicies sets the retry policies for embedding and storage calls.
// A nil policy runs calls once.
func WithIndexPolicies(embed, store *resilience.Policy) IndexOption {
	return func(s *IndexService) {
		s.embedPolicy = embed
		s.storePolicy = store
	}
}

// WithIndexConcurrency bounds the number of files IndexFiles works on at once.
func WithIndexConcurrency(n int) IndexOption {
	return func(s *IndexService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewIndexService creates a new index service.
func NewIndexService(
	registry driven.NormaliserRegistry,
	pipeline driven.PostProcessorPipeline,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	opts ...IndexOption,
) *IndexService {
	s := &IndexService{
		registry:    registry,
		pipeline:    pipeline,
		embedder:    embedder,
		index:       index,
		concurrency: defaultIndexConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Supports reports whether name has an extension a registered normaliser handles.
func (s *IndexService) Supports(name string) bool {
	mime := normalisers.MIMETypeFor(name)
	if mime == "" {
		return false
	}
	return slices.Contains(s.registry.SupportedMIMETypes(), mime)
}

// IndexFile reads and indexes the file at path. The document is keyed on
// the absolute path, so re-indexing an edited file replaces its chunks.
func (s *IndexService) IndexFile(ctx context.Context, path string) (*driving.IndexReport, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", domain.ErrInvalidInput)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.indexDocument(ctx, path, content)
}

// IndexBytes indexes an in-memory document named name. A later call with
// the same name replaces it.
func (s *IndexService) IndexBytes(ctx context.Context, name string, content []byte) (*driving.IndexReport, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty document name", domain.ErrInvalidInput)
	}
	return s.indexDocument(ctx, name, content)
}

// IndexFiles indexes paths concurrently. Reports are returned in input order
// with nil entries for files that failed; the error joins every failure.
func (s *IndexService) IndexFiles(ctx context.Context, paths []string) ([]*driving.IndexReport, error) {
	reports := make([]*driving.IndexReport, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			report, err := s.IndexFile(ctx, path)
			if err != nil {
				logger.Warn("index %s: %v", path, err)
				errs[i] = fmt.Errorf("%s: %w", path, err)
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	return reports, errors.Join(errs...)
}

// indexDocument runs the pipeline for one document.
func (s *IndexService) indexDocument(ctx context.Context, uri string, content []byte) (*driving.IndexReport, error) {
	logger.Section("Indexing " + filepath.Base(uri))
	defer logger.Timed("index " + uri)()

	if len(content) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, uri)
	}

	// 1. NORMALISE (bytes to text)
	result, err := s.registry.Normalise(ctx, &domain.RawDocument{
		URI:      uri,
		MIMEType: normalisers.MIMETypeFor(uri),
		Content:  content,
	})
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", uri, err)
	}
	doc := result.Document
	if doc.URI == "" {
		doc.URI = uri
	}
	if doc.ID == "" {
		doc.ID = normalisers.DocumentID(uri)
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(uri), filepath.Ext(uri))
	}

	report := &driving.IndexReport{
		DocumentID: doc.ID,
		URI:        doc.URI,
		Title:      doc.Title,
		Type:       doc.Type,
		Warnings:   slices.Clone(result.Warnings),
	}

	if strings.TrimSpace(doc.Content) == "" {
		logger.Warn("%s: %s", uri, warnNoText)
		if !mentions(report.Warnings, "no extractable text") {
			report.Warnings = append(report.Warnings, warnNoText)
		}
		if err := s.replace(ctx, doc.ID, nil); err != nil {
			return nil, fmt.Errorf("store %s: %w", uri, err)
		}
		return report, nil
	}

	// 2. CHUNK (semantic chunker embeds sentences)
	chunks, err := resilience.Do(ctx, s.embedPolicy, func(ctx context.Context) ([]domain.Chunk, error) {
		return s.pipeline.Process(ctx, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", uri, err)
	}
	if len(chunks) == 0 {
		logger.Warn("%s: %s", uri, warnNoChunks)
		report.Warnings = append(report.Warnings, warnNoChunks)
		if err := s.replace(ctx, doc.ID, nil); err != nil {
			return nil, fmt.Errorf("store %s: %w", uri, err)
		}
		return report, nil
	}
	logger.Debug("%s: %d characters into %d chunks", uri, len(doc.Content), len(chunks))

	// 3. EMBED
	entries, err := s.embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", uri, err)
	}

	// 4. STORE (replace so no chunk of an earlier version survives)
	if err := s.replace(ctx, doc.ID, entries); err != nil {
		return nil, fmt.Errorf("store %s: %w", uri, err)
	}

	report.Chunks = len(entries)
	logger.Info("Indexed %s: %d chunks", uri, report.Chunks)
	return report, nil
}

// replace makes entries the stored version of documentID.
func (s *IndexService) replace(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	return resilience.Run(ctx, s.storePolicy, func(ctx context.Context) error {
		return s.index.ReplaceDocument(ctx, documentID, entries)
	})
}

// embed embeds chunk contents in batches and pairs them with their chunks.
func (s *IndexService) embed(ctx context.Context, chunks []domain.Chunk) ([]domain.IndexEntry, error) {
	entries := make([]domain.IndexEntry, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Content
		}

		vectors, err := resilience.Do(ctx, s.embedPolicy, func(ctx context.Context) ([][]float32, error) {
			return s.embedder.EmbedBatch(ctx, texts)
		})
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrDimensionMismatch, len(vectors), len(texts))
		}

		for i, c := range chunks[start:end] {
			entries = append(entries, domain.IndexEntry{
				ID:     c.ID,
				Chunk:  c,
				Vector: vectors[i],
			})
		}
	}
	return entries, nil
}

// mentions reports whether any warning contains substr.
func mentions(warnings []string, substr string) bool {
	return slices.ContainsFunc(warnings, func(w string) bool {
		return strings.Contains(w, substr)
	})
}
