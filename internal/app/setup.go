// Package app assembles the application: storage, knowledge base,
// retrieval pipeline and outbound providers, built from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/jhh003/limbusguide/internal/bot"
	"github.com/jhh003/limbusguide/internal/config"
	"github.com/jhh003/limbusguide/internal/kb"
	"github.com/jhh003/limbusguide/internal/provider"
	"github.com/jhh003/limbusguide/internal/retriever"
	"github.com/jhh003/limbusguide/internal/store"
)

// App holds the initialized application components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *store.Store
	Manager   *kb.Manager
	Retriever *retriever.Retriever
	Bot       *bot.Service
}

// Setup initializes all components in dependency order. The returned App
// owns the store; call Close when done.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}

	embedder, err := provideEmbedder(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	reranker := provideReranker(cfg, logger)

	manager, err := kb.New(st, embedder, cfg.Retrieval, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating knowledge base: %w", err)
	}
	if err := manager.Load(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}
	if err := manager.SeedTemplates(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("seeding templates: %w", err)
	}

	r := retriever.New(manager, embedder, reranker, cfg.Retrieval, logger)

	webUIInfo := ""
	if cfg.Server.Enabled {
		webUIInfo = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	svc := bot.New(manager, r, cfg.Retrieval, webUIInfo, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Manager:   manager,
		Retriever: r,
		Bot:       svc,
	}, nil
}

// Close releases resources held by the application.
func (a *App) Close() error {
	return a.Store.Close()
}

// provideEmbedder returns the configured embedder, or a no-op one when
// embedding fusion is disabled.
func provideEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (provider.Embedder, error) {
	if !cfg.Retrieval.UseEmbedding {
		return provider.NopEmbedder{}, nil
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("initializing genkit with googlegenai provider")
	}
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.Providers.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.Providers.EmbedderModel)
	}
	logger.Info("embedding enabled", "model", cfg.Providers.EmbedderModel)
	return provider.NewGenkitEmbedder(embedder), nil
}

// provideReranker returns the configured reranker, or a no-op one when
// reranking is disabled.
func provideReranker(cfg *config.Config, logger *slog.Logger) provider.Reranker {
	if !cfg.Retrieval.UseReranking || cfg.Providers.RerankBaseURL == "" {
		return provider.NopReranker{}
	}
	apiKey := os.Getenv(cfg.Providers.RerankAPIKeyEnv)
	if apiKey == "" {
		logger.Warn("rerank API key not set, reranking disabled",
			"env", cfg.Providers.RerankAPIKeyEnv)
		return provider.NopReranker{}
	}
	logger.Info("reranking enabled",
		"base_url", cfg.Providers.RerankBaseURL, "model", cfg.Providers.RerankModel)
	return provider.NewHTTPReranker(
		cfg.Providers.RerankBaseURL,
		cfg.Providers.RerankModel,
		apiKey,
		cfg.Providers.Timeout,
		logger,
	)
}
