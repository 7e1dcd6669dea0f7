package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/repository"
	"github.com/laserpointlabs/odras/domain/task"
)

// Jobs exposes processing job status.
type Jobs struct {
	store  job.Store
	tasks  task.TaskStore
	logger *slog.Logger
}

// NewJobs creates a Jobs service. tasks is used to tell queued jobs from
// abandoned ones; it may be nil.
func NewJobs(store job.Store, tasks task.TaskStore, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{store: store, tasks: tasks, logger: logger}
}

// Get returns a job by id.
func (s *Jobs) Get(ctx context.Context, id string) (job.Job, error) {
	return s.store.Get(ctx, id)
}

// ListByDocument returns every job recorded for a document, newest first.
func (s *Jobs) ListByDocument(ctx context.Context, documentID string) ([]job.Job, error) {
	return s.store.Find(ctx,
		repository.WithDocumentID(documentID),
		repository.WithOrderDesc("created_at"),
	)
}

// FailInterrupted marks jobs a previous process left behind as failed so
// the documents can be ingested again: jobs still processing, and pending
// jobs whose ingest task is no longer queued. Call it before the worker
// starts.
func (s *Jobs) FailInterrupted(ctx context.Context) (int, error) {
	stuck, err := s.store.Find(ctx, repository.WithStatus(string(job.StatusProcessing)))
	if err != nil {
		return 0, fmt.Errorf("find interrupted jobs: %w", err)
	}
	for _, j := range stuck {
		if _, err := s.store.Save(ctx, j.Fail("interrupted: process stopped while the job was running")); err != nil {
			return 0, fmt.Errorf("fail job %s: %w", j.ID(), err)
		}
	}

	abandoned, err := s.abandoned(ctx)
	if err != nil {
		return 0, err
	}
	for _, j := range abandoned {
		if _, err := s.store.Save(ctx, j.Fail("abandoned: job was never started and is no longer queued")); err != nil {
			return 0, fmt.Errorf("fail job %s: %w", j.ID(), err)
		}
	}

	n := len(stuck) + len(abandoned)
	if n > 0 {
		s.logger.Warn("marked interrupted jobs failed",
			slog.Int("processing", len(stuck)),
			slog.Int("abandoned", len(abandoned)),
		)
	}
	return n, nil
}

// abandoned returns pending jobs with no queued ingest task.
func (s *Jobs) abandoned(ctx context.Context) ([]job.Job, error) {
	if s.tasks == nil {
		return nil, nil
	}
	pending, err := s.store.Find(ctx, repository.WithStatus(string(job.StatusPending)))
	if err != nil {
		return nil, fmt.Errorf("find pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	queued, err := s.tasks.FindPending(ctx, repository.WithCondition("type", string(task.OperationIngestDocument)))
	if err != nil {
		return nil, fmt.Errorf("find queued ingest tasks: %w", err)
	}
	live := make(map[string]bool, len(queued))
	for _, t := range queued {
		if id, ok := t.Payload()[task.PayloadJobID].(string); ok {
			live[id] = true
		}
	}

	var out []job.Job
	for _, j := range pending {
		if !live[j.ID()] {
			out = append(out, j)
		}
	}
	return out, nil
}
