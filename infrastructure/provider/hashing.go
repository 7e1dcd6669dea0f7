package provider

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// HashingEmbedding is a deterministic feature-hashing embedder. Each
// lower-cased word and word bigram is hashed into one of dimension buckets
// with a hash-derived sign, and the result is L2-normalised. Texts that
// share vocabulary get a high cosine similarity. It needs no model files or
// network and backs offline deployments and tests.
type HashingEmbedding struct {
	model     string
	dimension int
}

// NewHashingEmbedding creates a HashingEmbedding. An empty model name
// defaults to "hashing-<dimension>".
func NewHashingEmbedding(model string, dimension int) (*HashingEmbedding, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("hashing embedding: dimension must be positive, got %d", dimension)
	}
	if model == "" {
		model = fmt.Sprintf("hashing-%d", dimension)
	}
	return &HashingEmbedding{model: model, dimension: dimension}, nil
}

// Model returns the model identifier.
func (h *HashingEmbedding) Model() string { return h.model }

// Dimension returns the vector length.
func (h *HashingEmbedding) Dimension() int { return h.dimension }

// Embed returns one vector per text, in input order.
func (h *HashingEmbedding) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

// Close is a no-op.
func (h *HashingEmbedding) Close() error { return nil }

func (h *HashingEmbedding) vector(text string) []float64 {
	v := make([]float64, h.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		h.add(v, w, 1)
		if i > 0 {
			h.add(v, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func (h *HashingEmbedding) add(v []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	bucket := sum % uint64(h.dimension)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}
