package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/domain/task"
)

// TaskListParams configures task listing.
type TaskListParams struct {
	Operation *task.Operation
	Limit     int
	Offset    int
}

// Queue provides the main interface for enqueuing and managing tasks.
type Queue struct {
	store  task.TaskStore
	logger *slog.Logger
}

// NewQueue creates a new queue service.
func NewQueue(store task.TaskStore, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:  store,
		logger: logger,
	}
}

// Enqueue adds a task to the queue.
// If a task with the same dedup_key exists, its priority and payload are replaced.
func (s *Queue) Enqueue(ctx context.Context, t task.Task) error {
	_, err := s.store.Save(ctx, t)
	if err != nil {
		return err
	}

	s.logger.Debug("task enqueued",
		slog.String("dedup_key", t.DedupKey()),
		slog.String("operation", t.Operation().String()),
	)
	return nil
}

// List returns tasks matching the given params.
// Tasks are sorted by priority (highest first) then by created_at (oldest first).
func (s *Queue) List(ctx context.Context, params *TaskListParams) ([]task.Task, error) {
	var options []repository.Option

	if params != nil && params.Operation != nil {
		options = append(options, repository.WithCondition("type", params.Operation.String()))
	}
	if params != nil && params.Limit > 0 {
		options = append(options, repository.WithLimit(params.Limit), repository.WithOffset(params.Offset))
	}

	return s.store.FindPending(ctx, options...)
}

// Count returns the total number of pending tasks.
func (s *Queue) Count(ctx context.Context) (int64, error) {
	return s.store.CountPending(ctx)
}

// Get retrieves a task by ID.
func (s *Queue) Get(ctx context.Context, id int64) (task.Task, error) {
	return s.store.Get(ctx, id)
}

// DrainForDocument removes pending tasks whose payload names the document.
// A deleted document must not leave ingest tasks behind.
func (s *Queue) DrainForDocument(ctx context.Context, documentID string) (int, error) {
	tasks, err := s.store.FindPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("find pending tasks: %w", err)
	}

	removed := 0
	for _, t := range tasks {
		id, _ := t.Payload()[task.PayloadDocumentID].(string)
		if id != documentID {
			continue
		}
		if err := s.store.Delete(ctx, t); err != nil {
			return removed, fmt.Errorf("delete task %d: %w", t.ID(), err)
		}
		removed++
	}
	return removed, nil
}
