package search

import "context"

// Embedder converts text into embedding vectors using one named model.
type Embedder interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	// Model returns the model identifier the vectors come from.
	Model() string
}
