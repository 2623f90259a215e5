package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"issuesync/internal/config"
	"issuesync/internal/github"
	"issuesync/internal/indexer"
	"issuesync/internal/llm"
	"issuesync/internal/service"
	"issuesync/internal/syncer"
	"issuesync/internal/vectorstore"
)

// app holds the services a command runs against.
type app struct {
	manager     *service.Manager
	vectorStore *vectorstore.QdrantStore
	embedder    *llm.EmbeddingsClient
	models      *llm.ModelChecker
}

// newApp wires the GitHub fetcher, the Qdrant store and the model clients into a service.Manager.
func newApp(cfg *config.Config, engine syncer.Config) (*app, error) {
	client, err := github.NewClient(cfg.GitHubToken, cfg.GitHubAPIURL)
	if err != nil {
		return nil, err
	}
	fetcher := github.NewFetcher(client, github.WithRequestsPerSecond(cfg.GitHubRequestsPerSecond))

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	generator := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)

	manager, err := service.NewManager(service.Options{
		DataDir:          cfg.DataDir,
		CollectionPrefix: cfg.QdrantCollectionPrefix,
		VectorSize:       cfg.QdrantVectorSize,
		EmbeddingModel:   cfg.EmbeddingModelName,
		Chunk: indexer.ChunkParams{
			Size:         cfg.ChunkSize,
			Overlap:      cfg.ChunkOverlap,
			ContextChars: cfg.IssueContextChars,
		},
		Engine: engine,
	}, service.Deps{
		VectorStore: vectorStore,
		Embedder:    embedder,
		Source:      fetcher,
		Generator:   generator,
	})
	if err != nil {
		_ = vectorStore.Close()
		return nil, err
	}

	slog.Debug("Services initialized",
		"data_dir", cfg.DataDir,
		"qdrant", cfg.QdrantURL,
		"embedding_model", cfg.EmbeddingModelName,
		"llm_model", cfg.LLMModelName,
	)

	return &app{
		manager:     manager,
		vectorStore: vectorStore,
		embedder:    embedder,
		models:      llm.NewModelChecker(cfg.LLMBaseURL, cfg.LLMAPIKey),
	}, nil
}

// engineConfig builds the sync engine parameters from the loaded configuration.
func engineConfig(cfg *config.Config, state string) syncer.Config {
	return syncer.Config{
		State:           state,
		PageSize:        cfg.GitHubPageSize,
		IncludeComments: true,
		WatermarkBuffer: cfg.WatermarkBuffer,
	}
}

// checkEmbeddings fails fast when the embeddings service is down or returns vectors of the wrong size.
func (a *app) checkEmbeddings(ctx context.Context) error {
	if _, err := a.embedder.EmbedTexts(ctx, []string{"test"}); err != nil {
		return fmt.Errorf("failed to validate embedding client: %w", err)
	}
	slog.Debug("Embedding client validated", "vector_size", a.embedder.ExpectedSize)
	return nil
}

func (a *app) Close() error {
	return errors.Join(a.manager.Close(), a.vectorStore.Close())
}
