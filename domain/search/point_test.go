package search

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() Payload {
	return Payload{
		ProjectID:      "proj-1",
		DocumentID:     "doc-1",
		ChunkID:        "chunk-1",
		SequenceNumber: 0,
		ModelName:      "all-minilm",
		CreatedAt:      time.Now().UTC(),
	}
}

func TestPayload_Validate(t *testing.T) {
	require.NoError(t, validPayload().Validate())

	cases := map[string]func(*Payload){
		"project":  func(p *Payload) { p.ProjectID = "" },
		"document": func(p *Payload) { p.DocumentID = "" },
		"chunk":    func(p *Payload) { p.ChunkID = "" },
		"sequence": func(p *Payload) { p.SequenceNumber = -1 },
		"model":    func(p *Payload) { p.ModelName = "" },
		"created":  func(p *Payload) { p.CreatedAt = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPayload()
			mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload))
		})
	}
}

func TestNewPoint_IDIsChunkID(t *testing.T) {
	vec := []float64{0.1, 0.2, 0.3}
	p, err := NewPoint(vec, validPayload())
	require.NoError(t, err)

	assert.Equal(t, "chunk-1", p.ID())
	assert.Equal(t, 3, p.Dimension())

	vec[0] = 9
	assert.InDelta(t, 0.1, p.Vector()[0], 1e-9, "vector is copied")
}

func TestNewPoint_RejectsEmptyVector(t *testing.T) {
	_, err := NewPoint(nil, validPayload())
	require.Error(t, err)
}

func TestNewCandidate_ClampsScore(t *testing.T) {
	assert.Equal(t, 1.0, NewCandidate("a", 1.2, Payload{}).Score())
	assert.Equal(t, 0.0, NewCandidate("a", -0.3, Payload{}).Score())
	assert.Equal(t, 0.5, NewCandidate("a", 0.5, Payload{}).Score())
}
