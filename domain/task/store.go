package task

import (
	"context"

	"github.com/laserpointlabs/odras/domain/repository"
)

// TaskStore persists queued tasks.
type TaskStore interface {
	// Save inserts a task, or bumps the priority of an existing task with
	// the same dedup key.
	Save(ctx context.Context, t Task) (Task, error)
	// Get returns a task by id.
	Get(ctx context.Context, id int64) (Task, error)
	// Dequeue atomically claims the highest-priority, oldest task.
	Dequeue(ctx context.Context) (Task, bool, error)
	// Delete removes a task.
	Delete(ctx context.Context, t Task) error
	// FindPending lists queued tasks, highest priority first.
	FindPending(ctx context.Context, options ...repository.Option) ([]Task, error)
	// CountPending returns the number of queued tasks.
	CountPending(ctx context.Context) (int64, error)
}
