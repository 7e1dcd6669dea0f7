// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost                  = "0.0.0.0"
	DefaultPort                  = 8080
	DefaultLogLevel              = "INFO"
	DefaultCollectionName        = ""
	DefaultEndpointParallelTasks = 1
	DefaultEndpointTimeout       = 60 * time.Second
	DefaultEndpointMaxRetries    = 5
	DefaultEndpointInitialDelay  = 2 * time.Second
	DefaultEndpointBackoffFactor = 2.0
	DefaultEndpointMaxBatchChars = 16000
	DefaultEndpointMaxBatchSize  = 64
	DefaultEndpointCacheEntries  = 4096
	DefaultChunkStrategy         = "hybrid"
	DefaultChunkSize             = 1000
	DefaultChunkOverlap          = 100
	DefaultSearchLimit           = 10
	DefaultSearchOverfetch       = 3
	DefaultStoreTimeout          = 30 * time.Second
	DefaultVectorTimeout         = 30 * time.Second
	DefaultWorkerPollPeriod      = time.Second
	DefaultReconcileSchedule     = ""
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// VectorBackend selects the vector index implementation.
type VectorBackend string

// VectorBackend values.
const (
	VectorBackendSQLite   VectorBackend = "sqlite"
	VectorBackendPgVector VectorBackend = "pgvector"
	VectorBackendQdrant   VectorBackend = "qdrant"
)

// EmbeddingProvider selects the embedder implementation.
type EmbeddingProvider string

// EmbeddingProvider values.
const (
	EmbeddingProviderOpenAI  EmbeddingProvider = "openai"
	EmbeddingProviderHugot   EmbeddingProvider = "hugot"
	EmbeddingProviderHashing EmbeddingProvider = "hashing"
)

// Endpoint configures an embedding service endpoint.
type Endpoint struct {
	baseURL           string
	model             string
	apiKey            string
	dimension         int
	numParallelTasks  int
	requestsPerSecond float64
	timeout           time.Duration
	maxRetries        int
	initialDelay      time.Duration
	backoffFactor     float64
	maxBatchChars     int
	maxBatchSize      int
	cacheEntries      int
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		numParallelTasks: DefaultEndpointParallelTasks,
		timeout:          DefaultEndpointTimeout,
		maxRetries:       DefaultEndpointMaxRetries,
		initialDelay:     DefaultEndpointInitialDelay,
		backoffFactor:    DefaultEndpointBackoffFactor,
		maxBatchChars:    DefaultEndpointMaxBatchChars,
		maxBatchSize:     DefaultEndpointMaxBatchSize,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Dimension returns the configured vector length, 0 to probe the provider.
func (e Endpoint) Dimension() int { return e.dimension }

// NumParallelTasks returns how many batches are embedded concurrently.
func (e Endpoint) NumParallelTasks() int { return e.numParallelTasks }

// RequestsPerSecond returns the client-side rate limit, 0 for none.
func (e Endpoint) RequestsPerSecond() float64 { return e.requestsPerSecond }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// MaxBatchChars returns the maximum characters per text.
func (e Endpoint) MaxBatchChars() int { return e.maxBatchChars }

// MaxBatchSize returns the maximum number of texts per request.
func (e Endpoint) MaxBatchSize() int { return e.maxBatchSize }

// CacheEntries returns the size of the response cache, 0 to disable it.
func (e Endpoint) CacheEntries() int { return e.cacheEntries }

// IsConfigured returns true if the endpoint has required configuration.
func (e Endpoint) IsConfigured() bool {
	return e.model != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithDimension sets the vector length.
func WithDimension(n int) EndpointOption {
	return func(e *Endpoint) { e.dimension = n }
}

// WithNumParallelTasks sets the parallel batch count.
func WithNumParallelTasks(n int) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.numParallelTasks = n
		}
	}
}

// WithRequestsPerSecond sets the client-side rate limit.
func WithRequestsPerSecond(rps float64) EndpointOption {
	return func(e *Endpoint) { e.requestsPerSecond = rps }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// WithMaxBatchChars sets the maximum characters per text.
func WithMaxBatchChars(n int) EndpointOption {
	return func(e *Endpoint) { e.maxBatchChars = n }
}

// WithMaxBatchSize sets the maximum number of texts per request.
func WithMaxBatchSize(n int) EndpointOption {
	return func(e *Endpoint) { e.maxBatchSize = n }
}

// WithCacheEntries sets the size of the response cache.
func WithCacheEntries(n int) EndpointOption {
	return func(e *Endpoint) { e.cacheEntries = n }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// ChunkingConfig holds the default chunking parameters.
type ChunkingConfig struct {
	strategy string
	size     int
	overlap  int
	minSize  int
}

// NewChunkingConfig creates a ChunkingConfig with defaults.
func NewChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		strategy: DefaultChunkStrategy,
		size:     DefaultChunkSize,
		overlap:  DefaultChunkOverlap,
	}
}

// Strategy returns the chunking strategy tag.
func (c ChunkingConfig) Strategy() string { return c.strategy }

// Size returns the target chunk size in characters.
func (c ChunkingConfig) Size() int { return c.size }

// Overlap returns the overlap in characters.
func (c ChunkingConfig) Overlap() int { return c.overlap }

// MinSize returns the minimum chunk size in characters.
func (c ChunkingConfig) MinSize() int { return c.minSize }

// WithStrategy returns a new config with the specified strategy.
func (c ChunkingConfig) WithStrategy(s string) ChunkingConfig {
	c.strategy = s
	return c
}

// WithSize returns a new config with the specified size.
func (c ChunkingConfig) WithSize(n int) ChunkingConfig {
	c.size = n
	return c
}

// WithOverlap returns a new config with the specified overlap.
func (c ChunkingConfig) WithOverlap(n int) ChunkingConfig {
	c.overlap = n
	return c
}

// WithMinSize returns a new config with the specified minimum size.
func (c ChunkingConfig) WithMinSize(n int) ChunkingConfig {
	c.minSize = n
	return c
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	limit     int
	minScore  float64
	overfetch int
}

// NewSearchConfig creates a SearchConfig with defaults.
func NewSearchConfig() SearchConfig {
	return SearchConfig{limit: DefaultSearchLimit, overfetch: DefaultSearchOverfetch}
}

// Limit returns the default result limit.
func (s SearchConfig) Limit() int { return s.limit }

// MinScore returns the default score floor.
func (s SearchConfig) MinScore() float64 { return s.minScore }

// Overfetch returns how many candidates per result are pulled from the index.
func (s SearchConfig) Overfetch() int { return s.overfetch }

// WithLimit returns a new config with the specified limit.
func (s SearchConfig) WithLimit(n int) SearchConfig {
	if n > 0 {
		s.limit = n
	}
	return s
}

// WithMinScore returns a new config with the specified score floor.
func (s SearchConfig) WithMinScore(v float64) SearchConfig {
	s.minScore = v
	return s
}

// WithOverfetch returns a new config with the specified overfetch factor.
func (s SearchConfig) WithOverfetch(n int) SearchConfig {
	if n > 0 {
		s.overfetch = n
	}
	return s
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host              string
	port              int
	dataDir           string
	dbURL             string
	logLevel          string
	logFormat         LogFormat
	apiKeys           []string
	corsOrigins       []string
	vectorBackend     VectorBackend
	qdrantURL         string
	qdrantAPIKey      string
	collectionName    string
	embeddingProvider EmbeddingProvider
	embeddingEndpoint Endpoint
	chunking          ChunkingConfig
	search            SearchConfig
	storeTimeout      time.Duration
	vectorTimeout     time.Duration
	reconcileSchedule string
	workerPollPeriod  time.Duration
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".odras"
	}
	return filepath.Join(home, ".odras")
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:              DefaultHost,
		port:              DefaultPort,
		dataDir:           dataDir,
		dbURL:             "sqlite:///" + filepath.Join(dataDir, "odras.db"),
		logLevel:          DefaultLogLevel,
		logFormat:         LogFormatPretty,
		apiKeys:           []string{},
		corsOrigins:       []string{},
		vectorBackend:     VectorBackendSQLite,
		embeddingProvider: EmbeddingProviderHashing,
		embeddingEndpoint: NewEndpoint(),
		chunking:          NewChunkingConfig(),
		search:            NewSearchConfig(),
		storeTimeout:      DefaultStoreTimeout,
		vectorTimeout:     DefaultVectorTimeout,
		workerPollPeriod:  DefaultWorkerPollPeriod,
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// APIKeys returns the configured API keys.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// CORSOrigins returns the allowed CORS origins.
func (c AppConfig) CORSOrigins() []string {
	origins := make([]string, len(c.corsOrigins))
	copy(origins, c.corsOrigins)
	return origins
}

// VectorBackend returns the vector index backend.
func (c AppConfig) VectorBackend() VectorBackend { return c.vectorBackend }

// QdrantURL returns the Qdrant base URL.
func (c AppConfig) QdrantURL() string { return c.qdrantURL }

// QdrantAPIKey returns the Qdrant API key.
func (c AppConfig) QdrantAPIKey() string { return c.qdrantAPIKey }

// CollectionName returns the configured collection name, empty to derive
// it from the model identity.
func (c AppConfig) CollectionName() string { return c.collectionName }

// EmbeddingProvider returns the embedder implementation.
func (c AppConfig) EmbeddingProvider() EmbeddingProvider { return c.embeddingProvider }

// EmbeddingEndpoint returns the embedding endpoint config.
func (c AppConfig) EmbeddingEndpoint() Endpoint { return c.embeddingEndpoint }

// Chunking returns the chunking defaults.
func (c AppConfig) Chunking() ChunkingConfig { return c.chunking }

// Search returns the search defaults.
func (c AppConfig) Search() SearchConfig { return c.search }

// StoreTimeout returns the metadata store deadline.
func (c AppConfig) StoreTimeout() time.Duration { return c.storeTimeout }

// VectorTimeout returns the vector index deadline.
func (c AppConfig) VectorTimeout() time.Duration { return c.vectorTimeout }

// ReconcileSchedule returns the reconciliation cron schedule, empty when disabled.
func (c AppConfig) ReconcileSchedule() string { return c.reconcileSchedule }

// WorkerPollPeriod returns how often the worker polls the queue.
func (c AppConfig) WorkerPollPeriod() time.Duration { return c.workerPollPeriod }

// ModelDir returns the directory holding local embedding models.
func (c AppConfig) ModelDir() string {
	return filepath.Join(c.dataDir, "models")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		// Update default DB URL when data dir changes
		if c.dbURL == "" || strings.HasSuffix(c.dbURL, "odras.db") {
			c.dbURL = "sqlite:///" + filepath.Join(dir, "odras.db")
		}
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsOrigins = make([]string, len(origins))
		copy(c.corsOrigins, origins)
	}
}

// WithVectorBackend sets the vector index backend.
func WithVectorBackend(b VectorBackend) AppConfigOption {
	return func(c *AppConfig) { c.vectorBackend = b }
}

// WithQdrant sets the Qdrant connection.
func WithQdrant(url, apiKey string) AppConfigOption {
	return func(c *AppConfig) {
		c.qdrantURL = url
		c.qdrantAPIKey = apiKey
	}
}

// WithCollectionName sets the collection name.
func WithCollectionName(name string) AppConfigOption {
	return func(c *AppConfig) { c.collectionName = name }
}

// WithEmbeddingProvider sets the embedder implementation.
func WithEmbeddingProvider(p EmbeddingProvider) AppConfigOption {
	return func(c *AppConfig) { c.embeddingProvider = p }
}

// WithEmbeddingEndpoint sets the embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = e }
}

// WithChunking sets the chunking defaults.
func WithChunking(ch ChunkingConfig) AppConfigOption {
	return func(c *AppConfig) { c.chunking = ch }
}

// WithSearch sets the search defaults.
func WithSearch(s SearchConfig) AppConfigOption {
	return func(c *AppConfig) { c.search = s }
}

// WithStoreTimeout sets the metadata store deadline.
func WithStoreTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

// WithVectorTimeout sets the vector index deadline.
func WithVectorTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.vectorTimeout = d
		}
	}
}

// WithReconcileSchedule sets the reconciliation cron schedule.
func WithReconcileSchedule(schedule string) AppConfigOption {
	return func(c *AppConfig) { c.reconcileSchedule = schedule }
}

// WithWorkerPollPeriod sets the worker poll period.
func WithWorkerPollPeriod(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.workerPollPeriod = d
		}
	}
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks settings that would otherwise fail later at startup.
func (c AppConfig) Validate() error {
	switch c.vectorBackend {
	case VectorBackendSQLite, VectorBackendPgVector:
	case VectorBackendQdrant:
		if c.qdrantURL == "" {
			return fmt.Errorf("vector backend qdrant requires QDRANT_URL")
		}
	default:
		return fmt.Errorf("unknown vector backend %q", c.vectorBackend)
	}
	switch c.embeddingProvider {
	case EmbeddingProviderHashing, EmbeddingProviderHugot:
	case EmbeddingProviderOpenAI:
		if !c.embeddingEndpoint.IsConfigured() {
			return fmt.Errorf("embedding provider openai requires EMBEDDING_ENDPOINT_MODEL")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.embeddingProvider)
	}
	if c.embeddingProvider == EmbeddingProviderHashing && c.embeddingEndpoint.Dimension() < 0 {
		return fmt.Errorf("embedding dimension must not be negative")
	}
	if c.search.MinScore() < 0 || c.search.MinScore() > 1 {
		return fmt.Errorf("search min score %.3f is outside [0,1]", c.search.MinScore())
	}
	return nil
}

// LogAttrs returns slog attributes for logging the configuration.
// Sensitive values like API keys are masked or shown as counts.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("vector_backend", string(c.vectorBackend)),
		slog.String("collection", c.collectionName),
		slog.String("embedding_provider", string(c.embeddingProvider)),
		slog.String("embedding_base_url", c.embeddingEndpoint.BaseURL()),
		slog.String("embedding_model", c.embeddingEndpoint.Model()),
		slog.Int("embedding_dimension", c.embeddingEndpoint.Dimension()),
		slog.String("chunk_strategy", c.chunking.Strategy()),
		slog.Int("chunk_size", c.chunking.Size()),
		slog.Int("chunk_overlap", c.chunking.Overlap()),
		slog.Int("api_keys_count", len(c.apiKeys)),
		slog.String("reconcile_schedule", c.reconcileSchedule),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

// ParseList parses a comma-separated string, dropping empty entries.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
