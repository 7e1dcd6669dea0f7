package search

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPayload indicates a point payload that fails schema validation.
var ErrInvalidPayload = errors.New("invalid point payload")

// Payload is the fixed schema stored alongside every vector. It points back
// to the authoritative chunk row and never carries chunk text.
type Payload struct {
	ProjectID      string    `json:"project_id"`
	DocumentID     string    `json:"document_id"`
	ChunkID        string    `json:"chunk_id"`
	SequenceNumber int       `json:"sequence_number"`
	ModelName      string    `json:"model_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the payload against its schema.
func (p Payload) Validate() error {
	switch {
	case p.ProjectID == "":
		return fmt.Errorf("%w: project_id is empty", ErrInvalidPayload)
	case p.DocumentID == "":
		return fmt.Errorf("%w: document_id is empty", ErrInvalidPayload)
	case p.ChunkID == "":
		return fmt.Errorf("%w: chunk_id is empty", ErrInvalidPayload)
	case p.SequenceNumber < 0:
		return fmt.Errorf("%w: sequence_number %d is negative", ErrInvalidPayload, p.SequenceNumber)
	case p.ModelName == "":
		return fmt.Errorf("%w: model_name is empty", ErrInvalidPayload)
	case p.CreatedAt.IsZero():
		return fmt.Errorf("%w: created_at is zero", ErrInvalidPayload)
	}
	return nil
}

// Point is one entry of a vector collection. Its id equals the chunk id.
type Point struct {
	id      string
	vector  []float64
	payload Payload
}

// NewPoint creates a Point keyed by the payload's chunk id.
func NewPoint(vector []float64, payload Payload) (Point, error) {
	if err := payload.Validate(); err != nil {
		return Point{}, err
	}
	if len(vector) == 0 {
		return Point{}, fmt.Errorf("point %s: empty vector", payload.ChunkID)
	}
	v := make([]float64, len(vector))
	copy(v, vector)
	return Point{id: payload.ChunkID, vector: v, payload: payload}, nil
}

// ID returns the point id.
func (p Point) ID() string { return p.id }

// Vector returns a copy of the vector.
func (p Point) Vector() []float64 {
	v := make([]float64, len(p.vector))
	copy(v, p.vector)
	return v
}

// Dimension returns the vector length.
func (p Point) Dimension() int { return len(p.vector) }

// Payload returns the payload.
func (p Point) Payload() Payload { return p.payload }

// PointInfo describes a stored point without its vector, as returned by a
// collection scan. PayloadErr is set when the stored payload is malformed.
type PointInfo struct {
	ID         string
	Dimension  int
	Payload    Payload
	PayloadErr error
}

// Candidate is a nearest-neighbour hit from the vector index.
type Candidate struct {
	pointID string
	score   float64
	payload Payload
}

// NewCandidate creates a Candidate. The score is clamped to [0,1].
func NewCandidate(pointID string, score float64, payload Payload) Candidate {
	return Candidate{pointID: pointID, score: clampScore(score), payload: payload}
}

// PointID returns the point (and chunk) id.
func (c Candidate) PointID() string { return c.pointID }

// Score returns the normalised similarity in [0,1].
func (c Candidate) Score() float64 { return c.score }

// Payload returns the stored payload.
func (c Candidate) Payload() Payload { return c.payload }

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
