package job

import (
	"context"

	"github.com/laserpointlabs/odras/domain/repository"
)

// Store persists processing jobs.
type Store interface {
	// Save creates or updates a job.
	Save(ctx context.Context, j Job) (Job, error)
	// Get returns the job with the given id or domain.ErrNotFound.
	Get(ctx context.Context, id string) (Job, error)
	// Find returns jobs matching the options.
	Find(ctx context.Context, options ...repository.Option) ([]Job, error)
}

// WithActive selects pending or processing jobs.
func WithActive() repository.Option {
	return repository.WithStatusIn(ActiveStatuses())
}
