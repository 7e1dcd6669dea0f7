package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/internal/log"
)

func searchCmd() *cobra.Command {
	var (
		envFile   string
		projectID string
		limit     int
		minScore  float64
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a semantic search against the local index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			var opts []search.QueryOption
			if projectID != "" {
				opts = append(opts, search.WithProjectID(projectID))
			}
			if limit > 0 {
				opts = append(opts, search.WithLimit(limit))
			}
			if minScore > 0 {
				opts = append(opts, search.WithMinScore(minScore))
			}
			return runSearch(cmd.Context(), envFile, query, asJSON, opts...)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&projectID, "project", "", "Restrict results to one project")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop results scoring below this value")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

type searchLine struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Sequence      int     `json:"sequence"`
	Score         float64 `json:"score"`
	Content       string  `json:"content"`
}

func runSearch(ctx context.Context, envFile, query string, asJSON bool, opts ...search.QueryOption) error {
	client, slogger, err := oneShotClient(envFile)
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	results, err := client.Search.Query(ctx, query, opts...)
	if err != nil {
		return err
	}

	if asJSON {
		lines := make([]searchLine, 0, len(results.Hits()))
		for _, hit := range results.Hits() {
			lines = append(lines, searchLine{
				DocumentID:    hit.DocumentID(),
				DocumentTitle: hit.DocumentTitle(),
				Sequence:      hit.Sequence(),
				Score:         hit.Score(),
				Content:       hit.Content(),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lines)
	}

	for i, hit := range results.Hits() {
		fmt.Printf("%d. [%.3f] %s #%d\n", i+1, hit.Score(), hit.DocumentTitle(), hit.Sequence())
		fmt.Printf("   %s\n", preview(hit.Content(), 160))
	}
	fmt.Printf("%d of %d results in %dms\n", len(results.Hits()), results.TotalFound(), results.ElapsedMillis())
	return nil
}

// oneShotClient builds a client for commands that run once and exit.
func oneShotClient(envFile string) (*odras.Client, *slog.Logger, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	slogger := log.Configure(cfg).Slog()
	opts, err := clientOptions(cfg, slogger)
	if err != nil {
		return nil, nil, err
	}
	client, err := odras.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create odras client: %w", err)
	}
	return client, slogger, nil
}

func closeClient(client *odras.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("failed to close odras client", slog.Any("error", err))
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
