// Package odras provides a library for document ingestion and semantic search.
//
// Documents are registered with their extracted text, split into chunks,
// embedded with one model per collection and stored in a vector index. The
// relational store stays the source of truth for chunk text; the vector
// index only ranks candidates and can always be rebuilt by reconciliation.
//
// Basic usage:
//
//	client, err := odras.New(
//	    odras.WithSQLite(".odras/odras.db"),
//	    odras.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	doc, err := client.Documents.Register(ctx, "proj-1", "Radar notes", "text/plain", text)
//	job, err := client.Ingestion.Submit(ctx, doc.ID(), service.IngestParams{})
//
//	results, err := client.Search.Query(ctx, "altimeter clutter",
//	    search.WithProjectID("proj-1"),
//	    search.WithLimit(5),
//	)
//	for _, hit := range results.Hits() {
//	    fmt.Println(hit.DocumentTitle(), hit.Score())
//	}
package odras

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/laserpointlabs/odras/application/service"
	"github.com/laserpointlabs/odras/domain/search"
	domainservice "github.com/laserpointlabs/odras/domain/service"
	"github.com/laserpointlabs/odras/infrastructure/persistence"
	"github.com/laserpointlabs/odras/infrastructure/provider"
	"github.com/laserpointlabs/odras/infrastructure/vectorindex"
	"github.com/laserpointlabs/odras/internal/config"
	"github.com/laserpointlabs/odras/internal/database"
)

// Client is the main entry point for the odras library.
// The background worker starts automatically on creation.
//
// Access resources via struct fields:
//
//	client.Documents.Register(ctx, projectID, title, docType, text)
//	client.Ingestion.Submit(ctx, documentID, params)
//	client.Search.Query(ctx, "query")
type Client struct {
	Documents  *service.Documents
	Ingestion  *service.Ingestion
	Jobs       *service.Jobs
	Search     *service.Search
	Reconciler *service.Reconciler
	Tasks      *service.Queue

	db         database.Database
	index      search.VectorIndex
	collection search.Collection
	registry   *service.Registry
	worker     *service.Worker
	scheduler  *service.ReconcileScheduler
	closers    []io.Closer

	logger  *slog.Logger
	apiKeys []string
	closed  atomic.Bool
	mu      sync.Mutex
}

// New creates a new Client with the given options.
// The background worker is started automatically.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.database == databaseUnset {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	dataDir, err := config.PrepareDataDir(cfg.dataDir)
	if err != nil {
		return nil, err
	}

	// Fall back to the built-in model when no provider is configured
	if cfg.embedder == nil {
		modelDir := cfg.modelDir
		if modelDir == "" {
			modelDir = filepath.Join(dataDir, "models")
		}
		hugot := provider.NewHugotEmbedding(modelDir)
		if !hugot.Available() {
			return nil, fmt.Errorf("%w: no model found in %s, run 'odras download-model' or configure an embedding endpoint", ErrNoEmbedder, modelDir)
		}
		cfg.embedder = hugot
		cfg.closers = append(cfg.closers, hugot)
		logger.Info("built-in embedding provider enabled", slog.String("model_dir", modelDir))
	}

	ctx := context.Background()
	dbURL, err := buildDatabaseURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("build database url: %w", err)
	}

	db, err := database.NewDatabase(ctx, dbURL, database.WithTimeout(cfg.storeTimeout), database.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	fail := func(err error) (*Client, error) {
		return nil, errors.Join(err, db.Close())
	}

	if err := persistence.AutoMigrate(db); err != nil {
		return fail(fmt.Errorf("auto migrate: %w", err))
	}
	if err := persistence.ValidateSchema(db); err != nil {
		return fail(fmt.Errorf("validate schema: %w", err))
	}

	collection, err := resolveCollection(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	index, err := buildVectorIndex(ctx, cfg, db, logger)
	if err != nil {
		return fail(fmt.Errorf("vector index: %w", err))
	}
	if err := index.EnsureCollection(ctx, collection); err != nil {
		return fail(fmt.Errorf("ensure collection: %w", err))
	}

	generator, err := domainservice.NewEmbeddingGenerator(cfg.embedder, cfg.embeddingBudget,
		domainservice.WithParallelism(cfg.embeddingParallelism),
		domainservice.WithEmbedTimeout(cfg.embedTimeout),
	)
	if err != nil {
		return fail(fmt.Errorf("create embedding generator: %w", err))
	}

	documentStore := persistence.NewDocumentStore(db)
	chunkStore := persistence.NewChunkStore(db)
	jobStore := persistence.NewJobStore(db)
	taskStore := persistence.NewTaskStore(db)

	queue := service.NewQueue(taskStore, logger)
	registry := service.NewRegistry()

	client := &Client{
		Jobs:       service.NewJobs(jobStore, taskStore, logger),
		Tasks:      queue,
		db:         db,
		index:      index,
		collection: collection,
		registry:   registry,
		closers:    cfg.closers,
		logger:     logger,
		apiKeys:    cfg.apiKeys,
	}
	client.Documents = service.NewDocuments(documentStore, documentStore, chunkStore, jobStore, index, collection.Name(), queue, logger)
	client.Ingestion = service.NewIngestion(service.IngestionStores{
		Documents: documentStore,
		Texts:     documentStore,
		Chunks:    chunkStore,
		Jobs:      jobStore,
	}, index, generator, collection, queue, cfg.chunkParams, logger)
	client.Search = service.NewSearch(chunkStore, index, generator, collection.Name(), logger, cfg.searchDefaults...)
	client.Reconciler = service.NewReconciler(chunkStore, index, generator, logger)

	client.registerHandlers()
	if err := registry.Validate(); err != nil {
		return fail(fmt.Errorf("register handlers: %w", err))
	}

	// Jobs left processing by a previous process will never finish.
	if n, err := client.Jobs.FailInterrupted(ctx); err != nil {
		return fail(fmt.Errorf("fail interrupted jobs: %w", err))
	} else if n > 0 {
		logger.Warn("marked interrupted jobs as failed", slog.Int("count", n))
	}

	client.worker = service.NewWorker(taskStore, registry, logger).WithPollPeriod(cfg.workerPollPeriod)
	client.scheduler = service.NewReconcileScheduler(queue, cfg.reconcileSchedule, logger, collection.Name())
	if err := client.scheduler.Start(ctx); err != nil {
		return fail(fmt.Errorf("start reconcile scheduler: %w", err))
	}
	client.worker.Start(ctx)

	logger.Info("odras client ready",
		slog.String("collection", collection.Name()),
		slog.String("model", collection.Model()),
		slog.Int("dimension", collection.Dimension()),
		slog.String("vector_backend", string(cfg.vectorBackend)),
	)
	return client, nil
}

// Close releases all resources and stops the background worker.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.scheduler.Stop()
	c.worker.Stop()

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	c.logger.Info("odras client closed")
	return nil
}

// Collection returns the collection this client ingests into and searches.
func (c *Client) Collection() search.Collection {
	return c.collection
}

// ReconcileNow enqueues a reconciliation of the client's collection.
func (c *Client) ReconcileNow(ctx context.Context) {
	c.scheduler.RunNow(ctx)
}

// APIKeys returns the API keys configured for HTTP authentication.
func (c *Client) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Ping checks that the metadata database answers.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	sqlDB, err := c.db.GORM().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// dimensioned is implemented by embedders that know their output size.
type dimensioned interface {
	Dimension() int
}

// resolveCollection derives the collection from the embedder's identity.
func resolveCollection(ctx context.Context, cfg *clientConfig) (search.Collection, error) {
	dimension := cfg.dimension
	if dimension == 0 {
		if d, ok := cfg.embedder.(dimensioned); ok {
			dimension = d.Dimension()
		}
	}
	if dimension == 0 {
		probed, err := domainservice.ProbeDimension(ctx, cfg.embedder)
		if err != nil {
			return search.Collection{}, fmt.Errorf("probe embedding dimension: %w", err)
		}
		dimension = probed
	}

	identity, err := search.NewModelIdentity(cfg.embedder.Model(), dimension)
	if err != nil {
		return search.Collection{}, err
	}
	name := cfg.collectionName
	if name == "" {
		name = search.CollectionName(identity)
	}
	return search.NewCollection(name, identity)
}

// buildVectorIndex creates the vector index for the configured backend.
func buildVectorIndex(ctx context.Context, cfg *clientConfig, db database.Database, logger *slog.Logger) (search.VectorIndex, error) {
	opts := []vectorindex.Option{
		vectorindex.WithTimeout(cfg.vectorTimeout),
		vectorindex.WithLogger(logger),
	}
	switch cfg.vectorBackend {
	case config.VectorBackendPgVector:
		return vectorindex.NewPgVectorIndex(ctx, db, opts...)
	case config.VectorBackendQdrant:
		return vectorindex.NewQdrantIndex(ctx, cfg.qdrant, db, opts...)
	default:
		return vectorindex.NewSQLiteIndex(ctx, db, opts...)
	}
}

// buildDatabaseURL constructs the database URL from configuration.
func buildDatabaseURL(cfg *clientConfig) (string, error) {
	switch cfg.database {
	case databaseSQLite:
		return "sqlite:///" + cfg.dbPath, nil
	case databasePostgres:
		return cfg.dbDSN, nil
	default:
		return "", ErrNoDatabase
	}
}
