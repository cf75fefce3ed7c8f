package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
)

func noEnv(string) string { return "" }

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func valueOf(t *testing.T, values []driving.Setting, key string) driving.Setting {
	t.Helper()
	for _, v := range values {
		if v.Key == key {
			return v
		}
	}
	t.Fatalf("setting %s not listed", key)
	return driving.Setting{}
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(nil), WithEnv(noEnv))

	settings, err := service.Get()

	require.NoError(t, err)
	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Embedding, settings.Embedding)
	assert.Equal(t, defaults.LLM, settings.LLM)
	assert.Equal(t, defaults.Retrieval, settings.Retrieval)
	assert.Equal(t, defaults.Pipeline.Processors, settings.Pipeline.Processors)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{
		"embedding.provider":             "openai",
		"embedding.model":                "text-embedding-3-large",
		"embedding.api_key":              "sk-embed",
		"retrieval.top_k":                int64(4),
		"retrieval.lambda_mult":          0.5,
		"chunking.breakpoint_percentile": int64(90),
		"resilience.initial_backoff_ms":  int64(250),
		"pipeline.processors":            []any{"chunker", "metadata"},
		"pipeline.chunker.chunk_size":    int64(800),
		"conversation.concurrency":       "queue",
	})
	service := NewSettingsService(store, WithEnv(noEnv))

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-large", settings.Embedding.Model)
	assert.Equal(t, "sk-embed", settings.Embedding.APIKey)
	assert.Equal(t, 4, settings.Retrieval.TopK)
	assert.InDelta(t, 0.5, settings.Retrieval.LambdaMult, 1e-9)
	assert.InDelta(t, 90.0, settings.Chunking.BreakpointPercentile, 1e-9)
	assert.Equal(t, 250*time.Millisecond, settings.Resilience.InitialBackoff)
	assert.Equal(t, []string{"chunker", "metadata"}, settings.Pipeline.Processors)
	assert.Equal(t, 800, settings.Pipeline.GetProcessorConfig("chunker")["chunk_size"])
	assert.Equal(t, domain.ConcurrencyQueue, settings.Conversation.Concurrency)
}

func TestSettingsService_Get_ProviderChangeSelectsDefaultModel(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{"llm.provider": "groq"})
	service := NewSettingsService(store, WithEnv(noEnv))

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderGroq, settings.LLM.Provider)
	assert.Equal(t, domain.DefaultLLMModels()[domain.AIProviderGroq], settings.LLM.Model)
}

func TestSettingsService_Get_InvalidConfigIsReported(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{"retrieval.lambda_mult": 1.5})
	service := NewSettingsService(store, WithEnv(noEnv))

	_, err := service.Get()

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsService_Get_APIKeyFromEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		env      map[string]string
		want     string
	}{
		{"generic wins", "groq", map[string]string{EnvLLMAPIKey: "generic", EnvGroqAPIKey: "groq"}, "generic"},
		{"groq", "groq", map[string]string{EnvGroqAPIKey: "gsk"}, "gsk"},
		{"openai", "openai", map[string]string{EnvOpenAIAPIKey: "sk"}, "sk"},
		{"anthropic", "anthropic", map[string]string{EnvAnthropicAPIKey: "ant"}, "ant"},
		{"ollama ignores provider keys", "ollama", map[string]string{EnvOpenAIAPIKey: "sk"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewConfigStore(map[string]any{"llm.provider": tt.provider})
			service := NewSettingsService(store, WithEnv(envOf(tt.env)))

			settings, err := service.Get()

			require.NoError(t, err)
			assert.Equal(t, tt.want, settings.LLM.APIKey)
		})
	}
}

func TestSettingsService_Get_ConfiguredKeyBeatsEnvironment(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{
		"llm.provider": "openai",
		"llm.api_key":  "from-config",
	})
	service := NewSettingsService(store, WithEnv(envOf(map[string]string{EnvOpenAIAPIKey: "from-env"})))

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, "from-config", settings.LLM.APIKey)
}

func TestSettingsService_Set_PersistsTypedValue(t *testing.T) {
	store := memory.NewConfigStore(nil)
	service := NewSettingsService(store, WithEnv(noEnv))

	require.NoError(t, service.Set("retrieval.top_k", "8"))
	require.NoError(t, service.Set("llm.temperature", "0.3"))
	require.NoError(t, service.Set("pipeline.processors", "semantic, metadata"))

	assert.Equal(t, 8, store.GetInt("retrieval.top_k"))
	assert.InDelta(t, 0.3, store.GetFloat("llm.temperature"), 1e-9)
	assert.Equal(t, []string{"semantic", "metadata"}, store.GetStringSlice("pipeline.processors"))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, 8, settings.Retrieval.TopK)
}

func TestSettingsService_Set_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown key", "search.mode", "hybrid"},
		{"not an integer", "retrieval.top_k", "many"},
		{"not a number", "llm.temperature", "warm"},
		{"fails validation", "retrieval.fetch_k", "2"},
		{"unknown provider", "llm.provider", "acme"},
		{"empty list", "pipeline.processors", " , "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewConfigStore(nil)
			service := NewSettingsService(store, WithEnv(noEnv))

			err := service.Set(tt.key, tt.value)

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			_, exists := store.Get(tt.key)
			assert.False(t, exists)
		})
	}
}

func TestSettingsService_Values(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{
		"llm.provider":    "openai",
		"retrieval.top_k": int64(3),
	})
	service := NewSettingsService(store, WithEnv(envOf(map[string]string{EnvOpenAIAPIKey: "sk-1234567890abcd"})))

	values, err := service.Values()
	require.NoError(t, err)
	assert.Len(t, values, len(service.Keys()))

	topK := valueOf(t, values, "retrieval.top_k")
	assert.Equal(t, "3", topK.Value)
	assert.Equal(t, "config", topK.Source)

	fetchK := valueOf(t, values, "retrieval.fetch_k")
	assert.Equal(t, "20", fetchK.Value)
	assert.Equal(t, "default", fetchK.Source)

	key := valueOf(t, values, "llm.api_key")
	assert.Equal(t, "****abcd", key.Value)
	assert.Equal(t, "env", key.Source)

	backoff := valueOf(t, values, "resilience.initial_backoff_ms")
	assert.Equal(t, "500", backoff.Value)
}

func TestSettingsService_Keys(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(nil))

	keys := service.Keys()

	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "embedding.provider")
	assert.Contains(t, keys, "pipeline.chunker.overlap")
	assert.Contains(t, keys, "vector_store.collection")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "****wxyz", maskSecret("abcdefghwxyz"))
}
