package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/infrastructure/api"
	"github.com/laserpointlabs/odras/internal/config"
	"github.com/laserpointlabs/odras/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. YAML file named by CONFIG_FILE
  4. Environment variables
  5. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DATA_DIR                     Data directory (default: .odras)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/odras.db)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  API_KEYS                     Comma-separated list of valid API keys
  CORS_ORIGINS                 Comma-separated list of allowed origins

  VECTOR_BACKEND               Vector index: sqlite, pgvector, qdrant (default: sqlite)
  QDRANT_URL                   Qdrant base URL
  QDRANT_API_KEY               Qdrant API key
  COLLECTION_NAME              Vector collection (default: derived from the model)

  EMBEDDING_PROVIDER           Embedder: openai, hugot, hashing (default: hashing)
  EMBEDDING_ENDPOINT_*         Embedding service configuration
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., text-embedding-3-small)
    API_KEY                    API key for authentication
    DIMENSION                  Expected vector dimension
    NUM_PARALLEL_TASKS         Concurrent batches (default: 1)
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts (default: 5)

  CHUNK_STRATEGY               fixed, sentence-boundary, hybrid (default: hybrid)
  CHUNK_SIZE, CHUNK_OVERLAP    Chunk window in characters
  RECONCILE_SCHEDULE           Cron expression for periodic reconciliation`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	// Flags take precedence over env vars
	cfg = applyServeOverrides(cfg, host, port)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger := log.Configure(cfg)
	slogger := logger.Slog()

	opts, err := clientOptions(cfg, slogger)
	if err != nil {
		return err
	}

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting odras", attrs...)

	client, err := odras.New(opts...)
	if err != nil {
		return fmt.Errorf("create odras client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close odras client", slog.Any("error", err))
		}
	}()

	apiServer := api.NewAPIServer(client, cfg.APIKeys(),
		api.WithCORSOrigins(cfg.CORSOrigins()...),
		api.WithVersion(version),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := api.NewServer(cfg.Addr(), slogger)
	server.Router().Mount("/", apiServer.Handler())

	go func() {
		<-sigChan
		slogger.Info("shutting down server")
		cancel()
		if err := server.Shutdown(ctx); err != nil {
			slogger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	slogger.Info("starting server", slog.String("addr", cfg.Addr()))
	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
