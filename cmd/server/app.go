package main

import (
	"context"
	"fmt"
	"io"

	"moblaw.ru/legal-assistant/internal/config"
	"moblaw.ru/legal-assistant/internal/core"
	"moblaw.ru/legal-assistant/internal/index"
	"moblaw.ru/legal-assistant/internal/logger"
	"moblaw.ru/legal-assistant/internal/store"
)

type knowledgeIndex interface {
	core.SimilarityIndex
	core.IndexBuilder
}

// app holds the handles shared by every command. close releases them in
// reverse order of creation.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *store.SQLiteStore
	llm     *core.LLMService
	index   knowledgeIndex
	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if !cfg.LoadedDotEnv {
		log.Debug("No .env file found, using environment variables only")
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, log.Sync)

	a.store, err = store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, func() { closeQuietly(log, "database", a.store) })

	a.llm, err = core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.GeminiChatModel, cfg.GeminiEmbeddingModel, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.llm.Close)

	switch cfg.IndexBackend {
	case config.IndexBackendQdrant:
		q, err := index.NewQdrantIndex(index.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantAPIKey != "",
			Collection: cfg.QdrantCollection,
		}, a.llm.EmbeddingModel(), log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { closeQuietly(log, "qdrant", q) })
		a.index = q
	default:
		s, err := index.NewSQLiteIndex(ctx, a.store, a.llm.EmbeddingModel(), log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.index = s
	}
	log.Info("Knowledge index ready", "backend", cfg.IndexBackend, "embedding_model", a.llm.EmbeddingModel())

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func closeQuietly(log *logger.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn("Error during close", "resource", name, "error", err)
	}
}
