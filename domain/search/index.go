package search

import "context"

// Request describes a nearest-neighbour query against one collection.
type Request struct {
	vector    []float64
	projectID string
	limit     int
}

// NewRequest creates a Request for the top limit points.
func NewRequest(vector []float64, limit int) Request {
	v := make([]float64, len(vector))
	copy(v, vector)
	return Request{vector: v, limit: limit}
}

// WithProjectID returns a copy restricted to one project.
func (r Request) WithProjectID(projectID string) Request {
	r.projectID = projectID
	return r
}

// Vector returns the query vector.
func (r Request) Vector() []float64 { return r.vector }

// ProjectID returns the project filter, empty for none.
func (r Request) ProjectID() string { return r.projectID }

// Limit returns the number of candidates requested.
func (r Request) Limit() int { return r.limit }

// VectorIndex is a derived, rebuildable store of vectors. It holds no
// information that cannot be regenerated from the metadata store.
type VectorIndex interface {
	// EnsureCollection creates the collection or updates its declared
	// identity. Existing points are left for the reconciler to judge.
	EnsureCollection(ctx context.Context, c Collection) error
	// Collection returns the declared collection or domain.ErrNotFound.
	Collection(ctx context.Context, name string) (Collection, error)
	// Upsert writes points keyed by chunk id.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Delete removes points by id. Unknown ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error
	// Search returns up to Limit candidates ordered by descending score.
	// Points whose dimension differs from the declared one are never returned.
	Search(ctx context.Context, collection string, req Request) ([]Candidate, error)
	// Points lists every stored point without vectors.
	Points(ctx context.Context, collection string) ([]PointInfo, error)
}
