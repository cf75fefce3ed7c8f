package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/pdfqa/internal/adapters/driven/ai"
	"github.com/custodia-labs/pdfqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/pdfqa/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/pdfqa/internal/adapters/driving/cli"
	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/core/services"
	"github.com/custodia-labs/pdfqa/internal/logger"
	"github.com/custodia-labs/pdfqa/internal/normalisers"
	"github.com/custodia-labs/pdfqa/internal/postprocessors"
	"github.com/custodia-labs/pdfqa/internal/resilience"
)

// bootstrap builds the services a command needs from the stored settings.
func bootstrap(ctx context.Context, opts cli.BootstrapOptions) (*cli.Services, error) {
	store, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(store)

	out := &cli.Services{
		Settings:  settingsService,
		Validator: ai.NewConfigValidator(),
		Close:     func() {},
	}
	if opts.Level == cli.LevelSettings {
		return out, nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return nil, err
	}
	if opts.Model != "" {
		settings.LLM.Model = opts.Model
	}
	if settings.VectorStore.Path == "" && opts.ConfigDir != "" {
		settings.VectorStore.Path = filepath.Join(opts.ConfigDir, sqlite.DefaultFileName)
	}

	logger.Section("Initialising")
	res, err := ai.Init(ctx, settings, ai.Options{SkipLLM: opts.Level != cli.LevelFull})
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		logger.Warn("%s", w)
	}
	out.Close = res.Close

	pipeline, err := buildPipeline(settings, res.EmbeddingService)
	if err != nil {
		res.Close()
		return nil, err
	}

	embedPolicy := resilience.New("embedding", settings.Resilience)
	storePolicy := resilience.New("vector_store", settings.Resilience)

	out.Index = services.NewIndexService(
		normalisers.NewDefaultRegistry(),
		pipeline,
		res.EmbeddingService,
		res.VectorIndex,
		services.WithIndexPolicies(embedPolicy, storePolicy),
		services.WithIndexConcurrency(settings.Indexing.Concurrency),
	)
	retrieval := services.NewRetrievalService(
		res.EmbeddingService,
		res.VectorIndex,
		services.WithRetrievalPolicies(embedPolicy, storePolicy),
	)
	out.Retrieval = retrieval
	out.Defaults = settings.Retrieval.Options()

	if opts.Level != cli.LevelFull {
		return out, nil
	}

	prompts, err := file.NewPromptStore(promptDir(opts.ConfigDir))
	if err != nil {
		res.Close()
		return nil, err
	}

	out.Conversation = services.NewConversationService(
		retrieval,
		res.LLMService,
		memory.NewThreadStore(),
		conversationConfig(settings),
		services.WithPromptStore(prompts),
		services.WithLLMPolicy(resilience.New("llm", settings.Resilience)),
	)
	return out, nil
}

// buildPipeline assembles the chunking pipeline named by pipeline.processors.
func buildPipeline(settings *domain.AppSettings, embedder driven.EmbeddingService) (*postprocessors.Pipeline, error) {
	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry, postprocessors.Dependencies{
		Embedder: embedder,
		Chunking: settings.Chunking,
	})

	pipeline, err := registry.BuildPipeline(settings.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}
	logger.Debug("pipeline: %v", pipeline.Names())
	return pipeline, nil
}

func conversationConfig(settings *domain.AppSettings) services.ConversationConfig {
	return services.ConversationConfig{
		Retrieval:   settings.Retrieval.Options(),
		MaxHistory:  settings.Conversation.MaxHistory,
		Concurrency: settings.Conversation.Concurrency,
		Chat: driven.ChatOptions{
			Temperature: settings.LLM.Temperature,
			MaxTokens:   settings.LLM.MaxTokens,
		},
	}
}

// promptDir places prompts next to config.toml when a config dir is given.
func promptDir(configDir string) string {
	if configDir == "" {
		return ""
	}
	return filepath.Join(configDir, "prompts")
}
