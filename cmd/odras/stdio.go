package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/internal/log"
	"github.com/laserpointlabs/odras/internal/mcp"
)

func stdioCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This lets AI assistants search ingested documents and check ingestion jobs.
Configuration is loaded from environment variables and .env file. Logs are
written to stderr so stdout carries only protocol messages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}

func runStdio(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger := log.Configure(cfg)
	slogger := logger.Slog()

	slogger.Info("starting MCP server",
		slog.String("version", version),
		slog.String("data_dir", cfg.DataDir()),
	)

	opts, err := clientOptions(cfg, slogger)
	if err != nil {
		return err
	}

	client, err := odras.New(opts...)
	if err != nil {
		return fmt.Errorf("create odras client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close odras client", slog.Any("error", err))
		}
	}()

	mcpServer := mcp.NewServer(client.Search, client.Jobs, client.Documents, version, slogger)
	return mcpServer.ServeStdio()
}
