package provider

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashingEmbedding_Deterministic(t *testing.T) {
	h, err := NewHashingEmbedding("", 64)
	require.NoError(t, err)
	assert.Equal(t, "hashing-64", h.Model())

	a, err := h.Embed(context.Background(), []string{"GPS positioning accuracy", "GPS positioning accuracy"})
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, a[0], a[1])
	assert.Len(t, a[0], 64)
	assert.InDelta(t, 1.0, cosine(a[0], a[0]), 1e-9)
}

func TestHashingEmbedding_SimilarTextsScoreHigher(t *testing.T) {
	h, err := NewHashingEmbedding("test", 384)
	require.NoError(t, err)

	vectors, err := h.Embed(context.Background(), []string{
		"GPS positioning accuracy",
		"The receiver shall meet GPS positioning accuracy of three meters.",
		"Battery packs are stored in a dry place.",
	})
	require.NoError(t, err)

	assert.Greater(t, cosine(vectors[0], vectors[1]), cosine(vectors[0], vectors[2]))
}

func TestHashingEmbedding_EmptyText(t *testing.T) {
	h, err := NewHashingEmbedding("test", 8)
	require.NoError(t, err)

	vectors, err := h.Embed(context.Background(), []string{""})
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 8), vectors[0])
}

func TestNewHashingEmbedding_InvalidDimension(t *testing.T) {
	_, err := NewHashingEmbedding("test", 0)
	require.Error(t, err)
}
