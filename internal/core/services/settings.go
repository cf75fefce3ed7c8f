package services

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Environment variables consulted when an API key is not configured.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	EnvLLMAPIKey       = "PDFQA_LLM_API_KEY"
	EnvEmbeddingAPIKey = "PDFQA_EMBEDDING_API_KEY"
	EnvGroqAPIKey      = "GROQ_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedAPIKey   = "embedding.api_key"
	keyLLMProvider   = "llm.provider"
	keyLLMModel      = "llm.model"
	keyLLMAPIKey     = "llm.api_key"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindList
)

// setting binds a config key to a field of domain.AppSettings.
type setting struct {
	key    string
	kind   valueKind
	secret bool
	apply  func(s *domain.AppSettings, v any)
	show   func(s *domain.AppSettings) string
}

func stringKey(key string, get func(s *domain.AppSettings) *string) setting {
	return setting{
		key:   key,
		kind:  kindString,
		apply: func(s *domain.AppSettings, v any) { *get(s) = v.(string) },
		show:  func(s *domain.AppSettings) string { return *get(s) },
	}
}

func secretKey(key string, get func(s *domain.AppSettings) *string) setting {
	st := stringKey(key, get)
	st.secret = true
	return st
}

func enumKey[T ~string](key string, get func(s *domain.AppSettings) *T) setting {
	return setting{
		key:   key,
		kind:  kindString,
		apply: func(s *domain.AppSettings, v any) { *get(s) = T(v.(string)) },
		show:  func(s *domain.AppSettings) string { return string(*get(s)) },
	}
}

func intKey(key string, get func(s *domain.AppSettings) *int) setting {
	return setting{
		key:   key,
		kind:  kindInt,
		apply: func(s *domain.AppSettings, v any) { *get(s) = v.(int) },
		show:  func(s *domain.AppSettings) string { return strconv.Itoa(*get(s)) },
	}
}

func floatKey(key string, get func(s *domain.AppSettings) *float64) setting {
	return setting{
		key:   key,
		kind:  kindFloat,
		apply: func(s *domain.AppSettings, v any) { *get(s) = v.(float64) },
		show:  func(s *domain.AppSettings) string { return strconv.FormatFloat(*get(s), 'g', -1, 64) },
	}
}

// millisKey stores a duration as whole milliseconds.
func millisKey(key string, get func(s *domain.AppSettings) *time.Duration) setting {
	return setting{
		key:   key,
		kind:  kindInt,
		apply: func(s *domain.AppSettings, v any) { *get(s) = time.Duration(v.(int)) * time.Millisecond },
		show:  func(s *domain.AppSettings) string { return strconv.FormatInt(get(s).Milliseconds(), 10) },
	}
}

// processorKey binds pipeline.<processor>.<name> to the processor's config map.
func processorKey(processor, name string) setting {
	return setting{
		key:  "pipeline." + processor + "." + name,
		kind: kindInt,
		apply: func(s *domain.AppSettings, v any) {
			if s.Pipeline.ProcessorConfigs == nil {
				s.Pipeline.ProcessorConfigs = make(map[string]map[string]any)
			}
			cfg := s.Pipeline.ProcessorConfigs[processor]
			if cfg == nil {
				cfg = make(map[string]any)
				s.Pipeline.ProcessorConfigs[processor] = cfg
			}
			cfg[name] = v.(int)
		},
		show: func(s *domain.AppSettings) string {
			return fmt.Sprint(s.Pipeline.GetProcessorConfig(processor)[name])
		},
	}
}

type appCfg = domain.AppSettings

// settingsTable lists every supported key in display order.
var settingsTable = []setting{
	enumKey(keyEmbedProvider, func(s *appCfg) *domain.AIProvider { return &s.Embedding.Provider }),
	stringKey(keyEmbedModel, func(s *appCfg) *string { return &s.Embedding.Model }),
	stringKey("embedding.base_url", func(s *appCfg) *string { return &s.Embedding.BaseURL }),
	secretKey(keyEmbedAPIKey, func(s *appCfg) *string { return &s.Embedding.APIKey }),
	intKey("embedding.dimensions", func(s *appCfg) *int { return &s.Embedding.Dimensions }),

	enumKey(keyLLMProvider, func(s *appCfg) *domain.AIProvider { return &s.LLM.Provider }),
	stringKey(keyLLMModel, func(s *appCfg) *string { return &s.LLM.Model }),
	stringKey("llm.base_url", func(s *appCfg) *string { return &s.LLM.BaseURL }),
	secretKey(keyLLMAPIKey, func(s *appCfg) *string { return &s.LLM.APIKey }),
	floatKey("llm.temperature", func(s *appCfg) *float64 { return &s.LLM.Temperature }),
	intKey("llm.max_tokens", func(s *appCfg) *int { return &s.LLM.MaxTokens }),

	floatKey("chunking.breakpoint_percentile", func(s *appCfg) *float64 { return &s.Chunking.BreakpointPercentile }),
	intKey("chunking.buffer_size", func(s *appCfg) *int { return &s.Chunking.BufferSize }),
	intKey("chunking.max_chunk_size", func(s *appCfg) *int { return &s.Chunking.MaxChunkSize }),

	{
		key:   "pipeline.processors",
		kind:  kindList,
		apply: func(s *appCfg, v any) { s.Pipeline.Processors = v.([]string) },
		show:  func(s *appCfg) string { return strings.Join(s.Pipeline.Processors, ",") },
	},
	processorKey("chunker", "chunk_size"),
	processorKey("chunker", "overlap"),

	intKey("retrieval.top_k", func(s *appCfg) *int { return &s.Retrieval.TopK }),
	intKey("retrieval.fetch_k", func(s *appCfg) *int { return &s.Retrieval.FetchK }),
	floatKey("retrieval.lambda_mult", func(s *appCfg) *float64 { return &s.Retrieval.LambdaMult }),

	enumKey("vector_store.type", func(s *appCfg) *domain.VectorStoreType { return &s.VectorStore.Type }),
	stringKey("vector_store.path", func(s *appCfg) *string { return &s.VectorStore.Path }),
	stringKey("vector_store.address", func(s *appCfg) *string { return &s.VectorStore.Address }),
	stringKey("vector_store.username", func(s *appCfg) *string { return &s.VectorStore.Username }),
	secretKey("vector_store.password", func(s *appCfg) *string { return &s.VectorStore.Password }),
	stringKey("vector_store.database", func(s *appCfg) *string { return &s.VectorStore.Database }),
	stringKey("vector_store.collection", func(s *appCfg) *string { return &s.VectorStore.Collection }),

	intKey("conversation.max_history", func(s *appCfg) *int { return &s.Conversation.MaxHistory }),
	enumKey("conversation.concurrency", func(s *appCfg) *domain.ConcurrencyPolicy { return &s.Conversation.Concurrency }),

	intKey("resilience.max_attempts", func(s *appCfg) *int { return &s.Resilience.MaxAttempts }),
	millisKey("resilience.initial_backoff_ms", func(s *appCfg) *time.Duration { return &s.Resilience.InitialBackoff }),
	millisKey("resilience.max_backoff_ms", func(s *appCfg) *time.Duration { return &s.Resilience.MaxBackoff }),

	enumKey("cache.type", func(s *appCfg) *domain.CacheType { return &s.Cache.Type }),
	stringKey("cache.redis_addr", func(s *appCfg) *string { return &s.Cache.RedisAddr }),
	intKey("cache.redis_db", func(s *appCfg) *int { return &s.Cache.RedisDB }),

	intKey("indexing.concurrency", func(s *appCfg) *int { return &s.Indexing.Concurrency }),
	floatKey("ratelimit.embedding_rps", func(s *appCfg) *float64 { return &s.Indexing.EmbeddingRPS }),
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	getenv      func(string) string
}

// SettingsOption configures a SettingsService.
type SettingsOption func(*SettingsService)

// WithEnv replaces os.Getenv for API key lookups.
func WithEnv(getenv func(string) string) SettingsOption {
	return func(s *SettingsService) {
		s.getenv = getenv
	}
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, opts ...SettingsOption) *SettingsService {
	s := &SettingsService{
		configStore: configStore,
		getenv:      os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves current application settings.
// The result is validated; an invalid config file is reported, not repaired.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings, _ := s.resolve()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", s.configStore.Path(), err)
	}
	return settings, nil
}

// resolve applies config values and environment overrides to the defaults.
// The second result records where each key's value came from.
func (s *SettingsService) resolve() (*domain.AppSettings, map[string]string) {
	settings := domain.DefaultAppSettings()
	sources := make(map[string]string, len(settingsTable))

	for _, st := range settingsTable {
		sources[st.key] = "default"
		v, ok := s.read(st)
		if !ok {
			continue
		}
		st.apply(&settings, v)
		sources[st.key] = "config"
	}

	// A provider switch without an explicit model selects that provider's default.
	if sources[keyEmbedModel] == "default" && sources[keyEmbedProvider] == "config" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[settings.Embedding.Provider]
	}
	if sources[keyLLMModel] == "default" && sources[keyLLMProvider] == "config" {
		settings.LLM.Model = domain.DefaultLLMModels()[settings.LLM.Provider]
	}

	if settings.LLM.APIKey == "" {
		if key := s.llmKeyFromEnv(settings.LLM.Provider); key != "" {
			settings.LLM.APIKey = key
			sources[keyLLMAPIKey] = "env"
		}
	}
	if settings.Embedding.APIKey == "" {
		if key := s.embeddingKeyFromEnv(settings.Embedding.Provider); key != "" {
			settings.Embedding.APIKey = key
			sources[keyEmbedAPIKey] = "env"
		}
	}

	return &settings, sources
}

func (s *SettingsService) read(st setting) (any, bool) {
	if _, exists := s.configStore.Get(st.key); !exists {
		return nil, false
	}
	switch st.kind {
	case kindInt:
		return s.configStore.GetInt(st.key), true
	case kindFloat:
		return s.configStore.GetFloat(st.key), true
	case kindList:
		list := s.configStore.GetStringSlice(st.key)
		return list, len(list) > 0
	default:
		v := s.configStore.GetString(st.key)
		return v, v != ""
	}
}

func (s *SettingsService) llmKeyFromEnv(provider domain.AIProvider) string {
	if key := s.getenv(EnvLLMAPIKey); key != "" {
		return key
	}
	switch provider {
	case domain.AIProviderGroq:
		return s.getenv(EnvGroqAPIKey)
	case domain.AIProviderOpenAI:
		return s.getenv(EnvOpenAIAPIKey)
	case domain.AIProviderAnthropic:
		return s.getenv(EnvAnthropicAPIKey)
	default:
		return ""
	}
}

func (s *SettingsService) embeddingKeyFromEnv(provider domain.AIProvider) string {
	if key := s.getenv(EnvEmbeddingAPIKey); key != "" {
		return key
	}
	if provider == domain.AIProviderOpenAI {
		return s.getenv(EnvOpenAIAPIKey)
	}
	return ""
}

// Set parses value for key, checks the resulting settings and persists it.
func (s *SettingsService) Set(key, value string) error {
	st, ok := lookupSetting(key)
	if !ok {
		return fmt.Errorf("unknown setting %q: %w", key, domain.ErrInvalidInput)
	}

	parsed, err := parseValue(st.kind, value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	settings, _ := s.resolve()
	st.apply(settings, parsed)
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Values lists every key with its effective value and origin.
func (s *SettingsService) Values() ([]driving.Setting, error) {
	settings, sources := s.resolve()
	out := make([]driving.Setting, 0, len(settingsTable))
	for _, st := range settingsTable {
		value := st.show(settings)
		if st.secret && value != "" {
			value = maskSecret(value)
		}
		out = append(out, driving.Setting{Key: st.key, Value: value, Source: sources[st.key]})
	}
	return out, nil
}

// Keys returns every supported key in lexical order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, len(settingsTable))
	for i, st := range settingsTable {
		keys[i] = st.key
	}
	sort.Strings(keys)
	return keys
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

func lookupSetting(key string) (setting, bool) {
	for _, st := range settingsTable {
		if st.key == key {
			return st, true
		}
	}
	return setting{}, false
}

func parseValue(kind valueKind, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer: %w", value, domain.ErrInvalidInput)
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number: %w", value, domain.ErrInvalidInput)
		}
		return f, nil
	case kindList:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("empty list: %w", domain.ErrInvalidInput)
		}
		return items, nil
	default:
		return value, nil
	}
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
