package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/infrastructure/chunking"
	"github.com/laserpointlabs/odras/infrastructure/provider"
	"github.com/laserpointlabs/odras/internal/config"
)

// defaultHashingDimension is used by the hashing embedder when no
// EMBEDDING_ENDPOINT_DIMENSION is set.
const defaultHashingDimension = 384

// clientOptions returns the odras.Option slice derived from AppConfig.
// Callers append entrypoint-specific options before passing the full slice
// to odras.New.
func clientOptions(cfg config.AppConfig, logger *slog.Logger) ([]odras.Option, error) {
	opts := []odras.Option{
		odras.WithDataDir(cfg.DataDir()),
		odras.WithModelDir(cfg.ModelDir()),
		odras.WithLogger(logger),
		odras.WithStoreTimeout(cfg.StoreTimeout()),
		odras.WithVectorTimeout(cfg.VectorTimeout()),
		odras.WithWorkerPollPeriod(cfg.WorkerPollPeriod()),
		odras.WithReconcileSchedule(cfg.ReconcileSchedule()),
		odras.WithAPIKeys(cfg.APIKeys()...),
	}
	if name := cfg.CollectionName(); name != "" {
		opts = append(opts, odras.WithCollection(name))
	}

	opts = append(opts, storageOptions(cfg)...)

	embOpts, err := embeddingOptions(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding config: %w", err)
	}
	opts = append(opts, embOpts...)

	chunkOpts, err := chunkingOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("chunking config: %w", err)
	}
	opts = append(opts, chunkOpts...)

	opts = append(opts, searchOptions(cfg)...)
	return opts, nil
}

// storageOptions returns the options for the metadata database and the
// vector backend.
func storageOptions(cfg config.AppConfig) []odras.Option {
	var opts []odras.Option

	dbURL := cfg.DBURL()
	if dbURL != "" && !isSQLite(dbURL) {
		opts = append(opts, odras.WithPostgres(dbURL))
	} else {
		dbPath := cfg.DataDir() + "/odras.db"
		if dbURL != "" {
			dbPath = strings.TrimPrefix(dbURL, "sqlite:///")
			if dbPath == dbURL {
				dbPath = strings.TrimPrefix(dbURL, "sqlite:")
			}
		}
		opts = append(opts, odras.WithSQLite(dbPath))
	}

	switch cfg.VectorBackend() {
	case config.VectorBackendPgVector:
		opts = append(opts, odras.WithPgVector())
	case config.VectorBackendQdrant:
		opts = append(opts, odras.WithQdrant(cfg.QdrantURL(), cfg.QdrantAPIKey()))
	}
	return opts
}

// embeddingOptions returns the options for the configured embedding
// provider. The hugot provider needs no option: the client falls back to it
// when no embedder is set.
func embeddingOptions(cfg config.AppConfig, logger *slog.Logger) ([]odras.Option, error) {
	endpoint := cfg.EmbeddingEndpoint()

	budget, err := search.NewTokenBudget(endpoint.MaxBatchChars())
	if err != nil {
		return nil, fmt.Errorf("max batch chars: %w", err)
	}
	opts := []odras.Option{
		odras.WithEmbeddingBudget(budget.WithMaxBatchSize(endpoint.MaxBatchSize())),
		odras.WithEmbeddingParallelism(endpoint.NumParallelTasks()),
		odras.WithEmbedTimeout(endpoint.Timeout()),
		odras.WithDimension(endpoint.Dimension()),
	}

	switch cfg.EmbeddingProvider() {
	case config.EmbeddingProviderOpenAI:
		openaiCfg := provider.OpenAIConfig{
			APIKey:            endpoint.APIKey(),
			BaseURL:           endpoint.BaseURL(),
			Model:             endpoint.Model(),
			Timeout:           endpoint.Timeout(),
			MaxRetries:        endpoint.MaxRetries(),
			InitialDelay:      endpoint.InitialDelay(),
			BackoffFactor:     endpoint.BackoffFactor(),
			RequestsPerSecond: endpoint.RequestsPerSecond(),
			Logger:            logger,
		}
		if entries := endpoint.CacheEntries(); entries > 0 {
			transport, err := provider.NewCachingTransport(entries, nil)
			if err != nil {
				return nil, err
			}
			openaiCfg.Transport = transport
			opts = append(opts, odras.WithCloser(transport))
		}
		opts = append(opts, odras.WithOpenAIConfig(openaiCfg))
	case config.EmbeddingProviderHashing:
		dimension := endpoint.Dimension()
		if dimension == 0 {
			dimension = defaultHashingDimension
		}
		embedder, err := provider.NewHashingEmbedding(endpoint.Model(), dimension)
		if err != nil {
			return nil, err
		}
		opts = append(opts, odras.WithEmbeddingProvider(embedder))
	}
	return opts, nil
}

// chunkingOptions returns the default chunking parameters for ingestion jobs.
func chunkingOptions(cfg config.AppConfig) ([]odras.Option, error) {
	ch := cfg.Chunking()
	strategy, err := chunk.ParseStrategy(ch.Strategy())
	if err != nil {
		return nil, err
	}
	params := chunking.ChunkParams{
		Strategy: strategy,
		Size:     ch.Size(),
		Overlap:  ch.Overlap(),
		MinSize:  ch.MinSize(),
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return []odras.Option{odras.WithChunkParams(params)}, nil
}

// searchOptions returns the query defaults applied to every search.
func searchOptions(cfg config.AppConfig) []odras.Option {
	s := cfg.Search()
	return []odras.Option{odras.WithSearchDefaults(
		search.WithLimit(s.Limit()),
		search.WithMinScore(s.MinScore()),
		search.WithOverfetch(s.Overfetch()),
	)}
}

// isSQLite checks if the database URL is for SQLite.
func isSQLite(url string) bool {
	return strings.HasPrefix(url, "sqlite:")
}
