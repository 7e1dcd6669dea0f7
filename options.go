package odras

import (
	"io"
	"log/slog"
	"time"

	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/infrastructure/chunking"
	"github.com/laserpointlabs/odras/infrastructure/provider"
	"github.com/laserpointlabs/odras/infrastructure/vectorindex"
	"github.com/laserpointlabs/odras/internal/config"
)

// databaseType identifies the metadata database.
type databaseType int

const (
	databaseUnset databaseType = iota
	databaseSQLite
	databasePostgres
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	database             databaseType
	dbPath               string
	dbDSN                string
	dataDir              string
	modelDir             string
	vectorBackend        config.VectorBackend
	qdrant               vectorindex.QdrantConfig
	embedder             search.Embedder
	dimension            int
	collectionName       string
	chunkParams          chunking.ChunkParams
	searchDefaults       []search.QueryOption
	embeddingBudget      search.TokenBudget
	embeddingParallelism int
	embedTimeout         time.Duration
	storeTimeout         time.Duration
	vectorTimeout        time.Duration
	reconcileSchedule    string
	workerPollPeriod     time.Duration
	logger               *slog.Logger
	apiKeys              []string
	closers              []io.Closer
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	return &clientConfig{
		dataDir:              config.DefaultDataDir(),
		vectorBackend:        config.VectorBackendSQLite,
		chunkParams:          chunking.DefaultChunkParams(),
		embeddingBudget:      search.DefaultTokenBudget(),
		embeddingParallelism: config.DefaultEndpointParallelTasks,
		storeTimeout:         config.DefaultStoreTimeout,
		vectorTimeout:        config.DefaultVectorTimeout,
		workerPollPeriod:     config.DefaultWorkerPollPeriod,
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithSQLite configures SQLite as the metadata database.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.database = databaseSQLite
		c.dbPath = path
	}
}

// WithPostgres configures PostgreSQL as the metadata database.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.database = databasePostgres
		c.dbDSN = dsn
	}
}

// WithPgVector stores vectors in the metadata database through the pgvector
// extension. Requires WithPostgres.
func WithPgVector() Option {
	return func(c *clientConfig) {
		c.vectorBackend = config.VectorBackendPgVector
	}
}

// WithQdrant stores vectors in a Qdrant server.
func WithQdrant(url, apiKey string) Option {
	return func(c *clientConfig) {
		c.vectorBackend = config.VectorBackendQdrant
		c.qdrant = vectorindex.QdrantConfig{URL: url, APIKey: apiKey}
	}
}

// WithQdrantConfig stores vectors in a Qdrant server with a custom client.
func WithQdrantConfig(cfg vectorindex.QdrantConfig) Option {
	return func(c *clientConfig) {
		c.vectorBackend = config.VectorBackendQdrant
		c.qdrant = cfg
	}
}

// WithOpenAI embeds through the OpenAI API with default settings.
func WithOpenAI(apiKey string) Option {
	return WithOpenAIConfig(provider.OpenAIConfig{APIKey: apiKey})
}

// WithOpenAIConfig embeds through an OpenAI-compatible endpoint.
func WithOpenAIConfig(cfg provider.OpenAIConfig) Option {
	return func(c *clientConfig) {
		p := provider.NewOpenAIProvider(cfg)
		c.embedder = p
		c.closers = append(c.closers, p)
	}
}

// WithEmbeddingProvider sets a custom embedder.
func WithEmbeddingProvider(e search.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithDimension declares the embedder's vector length. When unset the
// dimension is probed from the embedder at startup.
func WithDimension(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.dimension = n
		}
	}
}

// WithCollection overrides the collection name. By default the name is
// derived from the model identity.
func WithCollection(name string) Option {
	return func(c *clientConfig) {
		c.collectionName = name
	}
}

// WithChunkParams sets the default chunking parameters for ingestion jobs.
func WithChunkParams(p chunking.ChunkParams) Option {
	return func(c *clientConfig) {
		c.chunkParams = p
	}
}

// WithSearchDefaults sets options applied before every query's own options.
func WithSearchDefaults(opts ...search.QueryOption) Option {
	return func(c *clientConfig) {
		c.searchDefaults = append(c.searchDefaults, opts...)
	}
}

// WithEmbeddingBudget sets the token budget for embedding batches.
func WithEmbeddingBudget(b search.TokenBudget) Option {
	return func(c *clientConfig) {
		c.embeddingBudget = b
	}
}

// WithEmbeddingParallelism sets how many embedding batches are dispatched concurrently.
// Defaults to 1. Values <= 0 are ignored.
func WithEmbeddingParallelism(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.embeddingParallelism = n
		}
	}
}

// WithEmbedTimeout bounds each embedding batch call.
func WithEmbedTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.embedTimeout = d
	}
}

// WithStoreTimeout bounds each metadata store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

// WithVectorTimeout bounds each vector index call.
func WithVectorTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.vectorTimeout = d
		}
	}
}

// WithReconcileSchedule enqueues a reconciliation of the collection on a
// cron schedule such as "@hourly". Empty disables it.
func WithReconcileSchedule(schedule string) Option {
	return func(c *clientConfig) {
		c.reconcileSchedule = schedule
	}
}

// WithDataDir sets the data directory for database storage and models.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithModelDir sets the directory where built-in model files are stored.
// Defaults to {dataDir}/models if not specified.
func WithModelDir(dir string) Option {
	return func(c *clientConfig) {
		c.modelDir = dir
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithAPIKeys sets the API keys for HTTP API authentication.
func WithAPIKeys(keys ...string) Option {
	return func(c *clientConfig) {
		c.apiKeys = keys
	}
}

// WithWorkerPollPeriod sets how often the background worker checks for new tasks.
// Defaults to 1 second.
func WithWorkerPollPeriod(d time.Duration) Option {
	return func(c *clientConfig) {
		c.workerPollPeriod = d
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(c io.Closer) Option {
	return func(cfg *clientConfig) {
		cfg.closers = append(cfg.closers, c)
	}
}
