package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	var (
		envFile    string
		collection string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair the vector collection against stored chunks",
		Long: `Run one reconciliation pass.

Chunks without a vector point are re-embedded and written, and points with
no matching chunk are removed. Chunk rows are never deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, slogger, err := oneShotClient(envFile)
			if err != nil {
				return err
			}
			defer closeClient(client, slogger)

			name := collection
			if name == "" {
				name = client.Collection().Name()
			}

			report, err := client.Reconciler.Reconcile(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", name, err)
			}

			fmt.Printf("collection:      %s\n", report.Collection)
			fmt.Printf("repaired:        %d\n", report.Repaired)
			fmt.Printf("orphans removed: %d\n", report.OrphansRemoved)
			fmt.Printf("failed:          %d\n", report.Failed)
			fmt.Printf("elapsed:         %s\n", report.Elapsed)
			if report.Failed > 0 {
				return fmt.Errorf("%d items could not be reconciled", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&collection, "collection", "", "Collection to reconcile (default: the configured collection)")

	return cmd
}
