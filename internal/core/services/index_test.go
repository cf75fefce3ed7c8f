package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/normalisers"
	"github.com/custodia-labs/pdfqa/internal/postprocessors"
	"github.com/custodia-labs/pdfqa/internal/postprocessors/metadata"
	"github.com/custodia-labs/pdfqa/internal/postprocessors/semantic"
)

const annualReport = `Acme Corp annual report for fiscal year 2023.
Total revenue for 2023 was $342.7M, up from $298.1M in 2022.
The company employed 1,200 people across four offices.
Headquarters moved to Lisbon in the spring.
Cloud subscriptions grew faster than hardware sales.`

func newTestIndexer(embedder *fakeEmbedder, index *memory.VectorIndex, opts ...IndexOption) *IndexService {
	pipeline := postprocessors.NewPipeline(
		semantic.New(embedder, semantic.WithMaxChunkSize(120)),
		metadata.New(),
	)
	return NewIndexService(normalisers.NewDefaultRegistry(), pipeline, embedder, index, opts...)
}

func TestIndexService_IndexBytes(t *testing.T) {
	embedder := newFakeEmbedder()
	index := memory.NewVectorIndex(testDims)
	svc := newTestIndexer(embedder, index)

	report, err := svc.IndexBytes(context.Background(), "acme-2023.txt", []byte(annualReport))

	require.NoError(t, err)
	assert.Equal(t, normalisers.DocumentID("acme-2023.txt"), report.DocumentID)
	assert.Equal(t, "acme-2023.txt", report.URI)
	assert.Equal(t, domain.DocumentTypeText, report.Type)
	assert.Empty(t, report.Warnings)
	require.Positive(t, report.Chunks)

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Chunks, count)

	results, err := index.Search(context.Background(), bagOfWords("revenue"), count, nil)
	require.NoError(t, err)
	var joined []string
	for _, r := range results {
		assert.Equal(t, report.DocumentID, r.Entry.Chunk.Metadata[domain.MetaDocumentID])
		assert.Equal(t, "acme-2023.txt", r.Entry.Chunk.Metadata[domain.MetaSource])
		joined = append(joined, r.Entry.Chunk.Content)
	}
	assert.Contains(t, strings.Join(joined, " "), "$342.7M")
}

func TestIndexService_ReindexIsIdempotent(t *testing.T) {
	embedder := newFakeEmbedder()
	index := memory.NewVectorIndex(testDims)
	svc := newTestIndexer(embedder, index)
	ctx := context.Background()

	first, err := svc.IndexBytes(ctx, "acme.txt", []byte(annualReport))
	require.NoError(t, err)
	second, err := svc.IndexBytes(ctx, "acme.txt", []byte(annualReport))
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, count)
}

func TestIndexService_ReindexEditedDocumentReplacesChunks(t *testing.T) {
	index := memory.NewVectorIndex(testDims)
	svc := newTestIndexer(newFakeEmbedder(), index)
	ctx := context.Background()

	first, err := svc.IndexBytes(ctx, "revenue.txt", []byte("Revenue was $342.7M in 2024."))
	require.NoError(t, err)
	second, err := svc.IndexBytes(ctx, "revenue.txt", []byte("Revenue was $351.0M in 2024."))
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, second.DocumentID)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Chunks, count)

	results, err := index.Search(ctx, bagOfWords("revenue"), 10, domain.MetadataFilter{domain.MetaSource: "revenue.txt"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotContains(t, r.Entry.Chunk.Content, "$342.7M")
		assert.Contains(t, r.Entry.Chunk.Content, "$351.0M")
	}
}

func TestIndexService_ReindexShorterDocumentDropsTail(t *testing.T) {
	index := memory.NewVectorIndex(testDims)
	svc := newTestIndexer(newFakeEmbedder(), index)
	ctx := context.Background()

	long, err := svc.IndexBytes(ctx, "acme.txt", []byte(annualReport))
	require.NoError(t, err)
	require.Greater(t, long.Chunks, 1)

	short, err := svc.IndexBytes(ctx, "acme.txt", []byte("Acme Corp annual report."))
	require.NoError(t, err)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, short.Chunks, count)
}

func TestIndexService_ReindexBlankDocumentRemovesIt(t *testing.T) {
	index := memory.NewVectorIndex(testDims)
	svc := newTestIndexer(newFakeEmbedder(), index)
	ctx := context.Background()

	_, err := svc.IndexBytes(ctx, "acme.txt", []byte(annualReport))
	require.NoError(t, err)
	report, err := svc.IndexBytes(ctx, "acme.txt", []byte(" \n"))
	require.NoError(t, err)
	assert.Contains(t, report.Warnings, warnNoText)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndexService_IndexFileKeysOnAbsolutePath(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte(annualReport), 0o600))
	t.Chdir(dir)

	svc := newTestIndexer(newFakeEmbedder(), memory.NewVectorIndex(testDims))
	relative, err := svc.IndexFile(context.Background(), "report.txt")
	require.NoError(t, err)
	absolute, err := svc.IndexFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, absolute.DocumentID, relative.DocumentID)
	assert.True(t, filepath.IsAbs(relative.URI))
}

func TestIndexService_NoTextWarns(t *testing.T) {
	embedder := newFakeEmbedder()
	index := memory.NewVectorIndex(testDims)
	svc := newTestIndexer(embedder, index)

	report, err := svc.IndexBytes(context.Background(), "blank.txt", []byte("  \n\t \n"))

	require.NoError(t, err)
	assert.Zero(t, report.Chunks)
	assert.Contains(t, report.Warnings, warnNoText)
	assert.Zero(t, embedder.callCount())
}

func TestIndexService_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		docName string
		content []byte
		wantErr error
	}{
		{"empty content", "a.txt", nil, domain.ErrInvalidInput},
		{"empty name", " ", []byte("text"), domain.ErrInvalidInput},
		{"unsupported type", "image.png", []byte{0x89, 'P', 'N', 'G'}, domain.ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestIndexer(newFakeEmbedder(), memory.NewVectorIndex(testDims))

			_, err := svc.IndexBytes(context.Background(), tt.docName, tt.content)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIndexService_RetriesTransientEmbeddingFailures(t *testing.T) {
	embedder := newFakeEmbedder().failing(2, domain.ErrTransient)
	index := memory.NewVectorIndex(testDims)
	svc := newTestIndexer(embedder, index, WithIndexPolicies(fastPolicy("embed"), fastPolicy("store")))

	report, err := svc.IndexBytes(context.Background(), "acme.txt", []byte(annualReport))

	require.NoError(t, err)
	assert.Positive(t, report.Chunks)
}

func TestIndexService_ExhaustedRetriesAreUnrecoverable(t *testing.T) {
	embedder := newFakeEmbedder().failing(100, domain.ErrTransient)
	svc := newTestIndexer(embedder, memory.NewVectorIndex(testDims),
		WithIndexPolicies(fastPolicy("embed"), fastPolicy("store")))

	_, err := svc.IndexBytes(context.Background(), "acme.txt", []byte(annualReport))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnrecoverable)
	assert.False(t, domain.IsRetryable(err))
	assert.Equal(t, 3, embedder.callCount())
}

func TestIndexService_DimensionMismatchIsNotRetried(t *testing.T) {
	embedder := newFakeEmbedder()
	index := memory.NewVectorIndex(testDims + 1)
	svc := newTestIndexer(embedder, index, WithIndexPolicies(fastPolicy("embed"), fastPolicy("store")))

	_, err := svc.IndexBytes(context.Background(), "acme.txt", []byte(annualReport))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndexService_IndexFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "report.txt")
	notes := filepath.Join(dir, "notes.md")
	missing := filepath.Join(dir, "missing.txt")
	require.NoError(t, os.WriteFile(good, []byte(annualReport), 0o600))
	require.NoError(t, os.WriteFile(notes, []byte("# Notes\n\nThe board met twice. Minutes were filed."), 0o600))

	index := memory.NewVectorIndex(testDims)
	svc := newTestIndexer(newFakeEmbedder(), index, WithIndexConcurrency(2))

	reports, err := svc.IndexFiles(context.Background(), []string{good, missing, notes})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.Len(t, reports, 3)
	require.NotNil(t, reports[0])
	assert.Nil(t, reports[1])
	require.NotNil(t, reports[2])
	assert.Equal(t, good, reports[0].URI)
	assert.Equal(t, domain.DocumentTypeMarkdown, reports[2].Type)

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reports[0].Chunks+reports[2].Chunks, count)
}

func TestIndexService_Supports(t *testing.T) {
	svc := newTestIndexer(newFakeEmbedder(), memory.NewVectorIndex(testDims))

	assert.True(t, svc.Supports("report.PDF"))
	assert.True(t, svc.Supports("notes.md"))
	assert.True(t, svc.Supports("data.txt"))
	assert.True(t, svc.Supports("site/index.html"))
	assert.True(t, svc.Supports("minutes.docx"))
	assert.False(t, svc.Supports("photo.jpg"))
	assert.False(t, svc.Supports("Makefile"))
}
