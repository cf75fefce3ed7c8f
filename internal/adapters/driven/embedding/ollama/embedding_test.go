package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// newServer returns an Ollama stub whose embedding encodes the prompt length.
func newServer(t *testing.T, dims int, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(status)
		case "/api/embeddings":
			calls.Add(1)
			if status != http.StatusOK {
				http.Error(w, "model not found", status)
				return
			}
			var req embedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			vec := make([]float64, dims)
			vec[0] = float64(len(req.Prompt))
			_ = json.NewEncoder(w).Encode(embedResponse{Embedding: vec})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestEmbed(t *testing.T) {
	srv, _ := newServer(t, 4, http.StatusOK)
	svc := NewEmbeddingService(Config{BaseURL: srv.URL, Dimensions: 4})

	vec, err := svc.Embed(context.Background(), "revenue")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, float32(7), vec[0])
}

func TestEmbed_EmptyText(t *testing.T) {
	srv, calls := newServer(t, 4, http.StatusOK)
	svc := NewEmbeddingService(Config{BaseURL: srv.URL, Dimensions: 4})

	_, err := svc.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, calls.Load())
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv, _ := newServer(t, 3, http.StatusOK)
	svc := NewEmbeddingService(Config{BaseURL: srv.URL, Dimensions: 4})

	_, err := svc.Embed(context.Background(), "revenue")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEmbed_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusServiceUnavailable, domain.ErrTransient},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusNotFound, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, _ := newServer(t, 4, tt.status)
			svc := NewEmbeddingService(Config{BaseURL: srv.URL, Dimensions: 4})

			_, err := svc.Embed(context.Background(), "revenue")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEmbed_Unreachable(t *testing.T) {
	srv, _ := newServer(t, 4, http.StatusOK)
	srv.Close()
	svc := NewEmbeddingService(Config{BaseURL: srv.URL, Dimensions: 4})

	_, err := svc.Embed(context.Background(), "revenue")
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	srv, calls := newServer(t, 2, http.StatusOK)
	svc := NewEmbeddingService(Config{BaseURL: srv.URL, Dimensions: 2, Concurrency: 3})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0])
	}
	assert.Equal(t, int32(len(texts)), calls.Load())
}

func TestEmbedBatch_FailsOnEmptyMember(t *testing.T) {
	srv, _ := newServer(t, 2, http.StatusOK)
	svc := NewEmbeddingService(Config{BaseURL: srv.URL, Dimensions: 2})

	_, err := svc.EmbedBatch(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.True(t, strings.Contains(err.Error(), "embed text 1"))
}

func TestPing(t *testing.T) {
	srv, _ := newServer(t, 2, http.StatusOK)
	assert.NoError(t, NewEmbeddingService(Config{BaseURL: srv.URL}).Ping(context.Background()))

	down, _ := newServer(t, 2, http.StatusBadGateway)
	assert.ErrorIs(t, NewEmbeddingService(Config{BaseURL: down.URL}).Ping(context.Background()), domain.ErrTransient)
}

func TestDefaults(t *testing.T) {
	svc := NewEmbeddingService(Config{})
	assert.Equal(t, DefaultModel, svc.ModelName())
	assert.Equal(t, DefaultDimensions, svc.Dimensions())
	assert.NoError(t, svc.Close())
}
