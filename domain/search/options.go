package search

// Defaults applied when a query leaves an option unset.
const (
	DefaultLimit           = 10
	DefaultOverfetchFactor = 3
	MaxLimit               = 100
)

// QueryOption configures a semantic search.
type QueryOption func(*QueryConfig)

// QueryConfig holds the resolved configuration of a search.
type QueryConfig struct {
	projectID string
	limit     int
	minScore  float64
	overfetch int
}

// NewQueryConfig applies options over the defaults.
func NewQueryConfig(opts ...QueryOption) QueryConfig {
	cfg := QueryConfig{limit: DefaultLimit, overfetch: DefaultOverfetchFactor}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.limit <= 0 {
		cfg.limit = DefaultLimit
	}
	if cfg.limit > MaxLimit {
		cfg.limit = MaxLimit
	}
	if cfg.overfetch < 1 {
		cfg.overfetch = 1
	}
	return cfg
}

// ProjectID returns the project filter, empty for all projects.
func (c QueryConfig) ProjectID() string { return c.projectID }

// Limit returns K, the maximum number of results.
func (c QueryConfig) Limit() int { return c.limit }

// MinScore returns the score floor.
func (c QueryConfig) MinScore() float64 { return c.minScore }

// CandidateCount returns M, the number of candidates to fetch from the
// index. M is never below K.
func (c QueryConfig) CandidateCount() int {
	return max(c.limit, c.limit*c.overfetch)
}

// WithProjectID restricts results to one project.
func WithProjectID(id string) QueryOption {
	return func(c *QueryConfig) { c.projectID = id }
}

// WithLimit sets the maximum number of results.
func WithLimit(n int) QueryOption {
	return func(c *QueryConfig) { c.limit = n }
}

// WithMinScore sets the score floor in [0,1].
func WithMinScore(s float64) QueryOption {
	return func(c *QueryConfig) { c.minScore = s }
}

// WithOverfetch sets how many candidates per result to pull from the index.
func WithOverfetch(factor int) QueryOption {
	return func(c *QueryConfig) { c.overfetch = factor }
}
