package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use underscore delimiter (e.g., EMBEDDING_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.odras
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/odras.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// APIKeys is a comma-separated list of valid API keys.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// CORSOrigins is a comma-separated list of allowed origins.
	// Env: CORS_ORIGINS
	CORSOrigins string `envconfig:"CORS_ORIGINS"`

	// VectorBackend selects the vector index (sqlite, pgvector or qdrant).
	// Env: VECTOR_BACKEND (default: sqlite)
	VectorBackend string `envconfig:"VECTOR_BACKEND" default:"sqlite"`

	// QdrantURL is the Qdrant REST endpoint.
	// Env: QDRANT_URL
	QdrantURL string `envconfig:"QDRANT_URL"`

	// QdrantAPIKey authenticates against Qdrant.
	// Env: QDRANT_API_KEY
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`

	// CollectionName overrides the collection name derived from the model.
	// Env: COLLECTION_NAME
	CollectionName string `envconfig:"COLLECTION_NAME"`

	// EmbeddingProvider selects the embedder (openai, hugot or hashing).
	// Env: EMBEDDING_PROVIDER (default: hashing)
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"hashing"`

	// EmbeddingEndpoint configures the embedding service.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// Chunk configures the default chunking parameters.
	Chunk ChunkEnv `envconfig:"CHUNK"`

	// Search configures search defaults.
	Search SearchEnv `envconfig:"SEARCH"`

	// StoreTimeout is the metadata store deadline in seconds.
	// Env: STORE_TIMEOUT (default: 30)
	StoreTimeout float64 `envconfig:"STORE_TIMEOUT" default:"30"`

	// VectorTimeout is the vector index deadline in seconds.
	// Env: VECTOR_TIMEOUT (default: 30)
	VectorTimeout float64 `envconfig:"VECTOR_TIMEOUT" default:"30"`

	// ReconcileSchedule is a cron expression for periodic reconciliation.
	// Env: RECONCILE_SCHEDULE
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE"`

	// WorkerPollPeriod is the queue poll period in seconds.
	// Env: WORKER_POLL_PERIOD (default: 1)
	WorkerPollPeriod float64 `envconfig:"WORKER_POLL_PERIOD" default:"1"`
}

// EndpointEnv holds environment configuration for an embedding endpoint.
type EndpointEnv struct {
	// BaseURL is the base URL for the endpoint.
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier (e.g., text-embedding-3-small).
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Dimension is the vector length. Zero probes the provider.
	// Env: *_DIMENSION
	Dimension int `envconfig:"DIMENSION"`

	// NumParallelTasks is the number of parallel batches.
	// Env: *_NUM_PARALLEL_TASKS (default: 1)
	NumParallelTasks int `envconfig:"NUM_PARALLEL_TASKS" default:"1"`

	// RequestsPerSecond limits outgoing requests. Zero disables limiting.
	// Env: *_REQUESTS_PER_SECOND
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: *_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: *_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: *_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`

	// MaxBatchChars is the maximum characters per embedded text.
	// Env: *_MAX_BATCH_CHARS (default: 16000)
	MaxBatchChars int `envconfig:"MAX_BATCH_CHARS" default:"16000"`

	// MaxBatchSize is the maximum number of texts per request.
	// Env: *_MAX_BATCH_SIZE (default: 64)
	MaxBatchSize int `envconfig:"MAX_BATCH_SIZE" default:"64"`

	// CacheEntries sizes the in-memory response cache. Zero disables it.
	// Env: *_CACHE_ENTRIES
	CacheEntries int `envconfig:"CACHE_ENTRIES"`
}

// ChunkEnv holds environment configuration for chunking.
type ChunkEnv struct {
	// Strategy is fixed, sentence-boundary or hybrid.
	// Env: CHUNK_STRATEGY (default: hybrid)
	Strategy string `envconfig:"STRATEGY" default:"hybrid"`

	// Size is the target chunk size in characters.
	// Env: CHUNK_SIZE (default: 1000)
	Size int `envconfig:"SIZE" default:"1000"`

	// Overlap is the overlap between chunks in characters.
	// Env: CHUNK_OVERLAP (default: 100)
	Overlap int `envconfig:"OVERLAP" default:"100"`

	// MinSize drops trailing chunks shorter than this.
	// Env: CHUNK_MIN_SIZE
	MinSize int `envconfig:"MIN_SIZE"`
}

// SearchEnv holds environment configuration for search.
type SearchEnv struct {
	// Limit is the default result limit.
	// Env: SEARCH_LIMIT (default: 10)
	Limit int `envconfig:"LIMIT" default:"10"`

	// MinScore is the default score floor.
	// Env: SEARCH_MIN_SCORE
	MinScore float64 `envconfig:"MIN_SCORE"`

	// Overfetch multiplies the limit when pulling candidates.
	// Env: SEARCH_OVERFETCH (default: 3)
	Overfetch int `envconfig:"OVERFETCH" default:"3"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "ODRAS" would require ODRAS_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = applyOption(cfg, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = applyOption(cfg, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.APIKeys != "" {
		cfg = applyOption(cfg, WithAPIKeys(ParseList(e.APIKeys)))
	}
	if e.CORSOrigins != "" {
		cfg = applyOption(cfg, WithCORSOrigins(ParseList(e.CORSOrigins)))
	}

	if e.VectorBackend != "" {
		cfg = applyOption(cfg, WithVectorBackend(VectorBackend(strings.ToLower(e.VectorBackend))))
	}
	if e.QdrantURL != "" {
		cfg = applyOption(cfg, WithQdrant(e.QdrantURL, e.QdrantAPIKey))
	}
	if e.CollectionName != "" {
		cfg = applyOption(cfg, WithCollectionName(e.CollectionName))
	}

	if e.EmbeddingProvider != "" {
		cfg = applyOption(cfg, WithEmbeddingProvider(EmbeddingProvider(strings.ToLower(e.EmbeddingProvider))))
	}
	cfg = applyOption(cfg, WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()))

	cfg = applyOption(cfg, WithChunking(e.Chunk.ToChunkingConfig()))
	cfg = applyOption(cfg, WithSearch(e.Search.ToSearchConfig()))

	cfg = applyOption(cfg, WithStoreTimeout(seconds(e.StoreTimeout)))
	cfg = applyOption(cfg, WithVectorTimeout(seconds(e.VectorTimeout)))
	cfg = applyOption(cfg, WithWorkerPollPeriod(seconds(e.WorkerPollPeriod)))
	if e.ReconcileSchedule != "" {
		cfg = applyOption(cfg, WithReconcileSchedule(e.ReconcileSchedule))
	}

	return cfg
}

// applyOption applies an option to the config.
func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

// IsConfigured returns true if the endpoint has a model configured.
func (e EndpointEnv) IsConfigured() bool {
	return e.Model != ""
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithModel(e.Model),
		WithDimension(e.Dimension),
		WithNumParallelTasks(e.NumParallelTasks),
		WithRequestsPerSecond(e.RequestsPerSecond),
		WithTimeout(seconds(e.Timeout)),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(seconds(e.InitialDelay)),
		WithBackoffFactor(e.BackoffFactor),
		WithMaxBatchChars(e.MaxBatchChars),
		WithMaxBatchSize(e.MaxBatchSize),
		WithCacheEntries(e.CacheEntries),
	}

	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}

	return NewEndpointWithOptions(opts...)
}

// ToChunkingConfig converts ChunkEnv to ChunkingConfig.
func (c ChunkEnv) ToChunkingConfig() ChunkingConfig {
	return NewChunkingConfig().
		WithStrategy(strings.ToLower(c.Strategy)).
		WithSize(c.Size).
		WithOverlap(c.Overlap).
		WithMinSize(c.MinSize)
}

// ToSearchConfig converts SearchEnv to SearchConfig.
func (s SearchEnv) ToSearchConfig() SearchConfig {
	return NewSearchConfig().
		WithLimit(s.Limit).
		WithMinScore(s.MinScore).
		WithOverfetch(s.Overfetch)
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
