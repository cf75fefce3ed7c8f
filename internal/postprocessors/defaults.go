package postprocessors

import (
	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/postprocessors/chunker"
	"github.com/custodia-labs/pdfqa/internal/postprocessors/metadata"
	"github.com/custodia-labs/pdfqa/internal/postprocessors/semantic"
)

// Dependencies are the services built-in processors may need.
type Dependencies struct {
	// Embedder is used by the semantic chunker to embed sentences.
	Embedder driven.EmbeddingService

	// Chunking holds the semantic chunker defaults.
	Chunking domain.ChunkingSettings
}

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry, deps Dependencies) {
	r.Register("chunker", buildChunker)
	r.Register("metadata", func(map[string]any) (driven.PostProcessor, error) {
		return metadata.New(), nil
	})
	r.Register("semantic", func(cfg map[string]any) (driven.PostProcessor, error) {
		return buildSemantic(deps, cfg)
	})
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - chunk_size (int): Runes per chunk (default: 500)
//   - overlap (int): Overlapping runes between chunks (default: 100)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if cfg != nil {
		if size := getIntFromConfig(cfg, "chunk_size"); size > 0 {
			opts = append(opts, chunker.WithChunkSize(size))
		}
		if _, ok := cfg["overlap"]; ok {
			opts = append(opts, chunker.WithOverlap(getIntFromConfig(cfg, "overlap")))
		}
	}

	return chunker.New(opts...), nil
}

// buildSemantic creates a semantic chunker. Settings come from the
// [chunking] section; per-processor config keys override them:
//   - breakpoint_percentile (float)
//   - buffer_size (int)
//   - max_chunk_size (int)
func buildSemantic(deps Dependencies, cfg map[string]any) (driven.PostProcessor, error) {
	if deps.Embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	opts := []semantic.Option{
		semantic.WithBreakpointPercentile(deps.Chunking.BreakpointPercentile),
		semantic.WithBufferSize(deps.Chunking.BufferSize),
		semantic.WithMaxChunkSize(deps.Chunking.MaxChunkSize),
	}

	if cfg != nil {
		if p := getFloatFromConfig(cfg, "breakpoint_percentile"); p > 0 {
			opts = append(opts, semantic.WithBreakpointPercentile(p))
		}
		if _, ok := cfg["buffer_size"]; ok {
			opts = append(opts, semantic.WithBufferSize(getIntFromConfig(cfg, "buffer_size")))
		}
		if size := getIntFromConfig(cfg, "max_chunk_size"); size > 0 {
			opts = append(opts, semantic.WithMaxChunkSize(size))
		}
	}

	return semantic.New(deps.Embedder, opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// getFloatFromConfig extracts a float64, accepting integer values too.
func getFloatFromConfig(cfg map[string]any, key string) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
