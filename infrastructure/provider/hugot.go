package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

const hugotBatchMax = 10

// hugotRuntime holds the process-wide hugot session and pipeline. The
// mutex serializes initialization and inference.
var hugotRuntime struct {
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	modelPath string
	mu        sync.Mutex
}

// HugotEmbedding generates embeddings locally with a sentence-transformer
// ONNX model (for example all-MiniLM-L6-v2) through the pure-Go hugot
// backend. The model is looked up as a subdirectory of modelDir that
// contains tokenizer.json; the subdirectory name is the model identifier.
type HugotEmbedding struct {
	modelDir string
}

// NewHugotEmbedding creates a HugotEmbedding that looks for model files in modelDir.
func NewHugotEmbedding(modelDir string) *HugotEmbedding {
	return &HugotEmbedding{modelDir: modelDir}
}

// Available reports whether a usable model exists on disk.
func (h *HugotEmbedding) Available() bool {
	_, err := h.diskModelPath()
	return err == nil
}

// Model returns the model directory name, or "hugot" when no model is present.
func (h *HugotEmbedding) Model() string {
	path, err := h.diskModelPath()
	if err != nil {
		return "hugot"
	}
	return filepath.Base(path)
}

func (h *HugotEmbedding) initialize() error {
	modelPath, err := h.diskModelPath()
	if err != nil {
		return err
	}

	if hugotRuntime.pipeline != nil && hugotRuntime.modelPath == modelPath {
		return nil
	}
	if hugotRuntime.session != nil {
		_ = hugotRuntime.session.Destroy()
		hugotRuntime.session = nil
		hugotRuntime.pipeline = nil
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return fmt.Errorf("create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "odras-embeddings",
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("create feature extraction pipeline: %w", err)
	}

	hugotRuntime.session = session
	hugotRuntime.pipeline = pipeline
	hugotRuntime.modelPath = modelPath
	return nil
}

// diskModelPath looks for a model subdirectory containing tokenizer.json
// inside modelDir.
func (h *HugotEmbedding) diskModelPath() (string, error) {
	entries, err := os.ReadDir(h.modelDir)
	if err != nil {
		return "", fmt.Errorf("read model directory %s: %w", h.modelDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(h.modelDir, entry.Name())
		if _, statErr := os.Stat(filepath.Join(candidate, "tokenizer.json")); statErr == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no model subdirectory with tokenizer.json found in %s", h.modelDir)
}

// Embed generates embeddings for the given texts using the local model,
// running the pipeline in batches of at most hugotBatchMax texts.
func (h *HugotEmbedding) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hugotRuntime.mu.Lock()
	defer hugotRuntime.mu.Unlock()

	if err := h.initialize(); err != nil {
		return nil, NewProviderError("embedding", 0, "initialize hugot", err)
	}

	embeddings := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += hugotBatchMax {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+hugotBatchMax, len(texts))

		result, err := hugotRuntime.pipeline.RunPipeline(texts[start:end])
		if err != nil {
			return nil, NewProviderError("embedding", 0, "run embedding pipeline", err)
		}
		for _, vec32 := range result.Embeddings {
			vec64 := make([]float64, len(vec32))
			for j, v := range vec32 {
				vec64[j] = float64(v)
			}
			embeddings = append(embeddings, vec64)
		}
	}

	return embeddings, nil
}

// Close is a no-op. The hugot session is process-global and shared across
// all HugotEmbedding instances; it is cleaned up when the process exits.
func (h *HugotEmbedding) Close() error {
	return nil
}
