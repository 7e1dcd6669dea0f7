package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knights-analytics/hugot"
	"github.com/spf13/cobra"
)

const defaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"

func downloadModelCmd() *cobra.Command {
	var (
		envFile  string
		model    string
		onnxFile string
	)

	cmd := &cobra.Command{
		Use:   "download-model",
		Short: "Download an ONNX embedding model for the local hugot provider",
		Long: `Download a sentence-transformers model from HuggingFace into
{data_dir}/models so EMBEDDING_PROVIDER=hugot can run without network access.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}

			dest := cfg.ModelDir()
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create model directory: %w", err)
			}

			opts := hugot.NewDownloadOptions()
			opts.OnnxFilePath = onnxFile

			fmt.Printf("Downloading %s to %s\n", model, dest)
			path, err := hugot.DownloadModel(model, dest, opts)
			if err != nil {
				return fmt.Errorf("download %s: %w", model, err)
			}

			if _, err := os.Stat(filepath.Join(path, "tokenizer.json")); err != nil {
				return fmt.Errorf("downloaded model has no tokenizer.json: %w", err)
			}
			fmt.Printf("Model saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&model, "model", defaultEmbeddingModel, "HuggingFace model repository")
	cmd.Flags().StringVar(&onnxFile, "onnx-file", "onnx/model.onnx", "Path of the ONNX file inside the repository")

	return cmd
}
