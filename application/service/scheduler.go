package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/laserpointlabs/odras/domain/task"
)

// ReconcileScheduler enqueues reconcile_collection tasks on a cron schedule.
// An empty schedule disables it.
type ReconcileScheduler struct {
	queue       *Queue
	collections []string
	schedule    string
	logger      *slog.Logger

	cron *cron.Cron
	mu   sync.Mutex
}

// NewReconcileScheduler creates a scheduler. schedule is a standard
// five-field cron expression or a descriptor such as "@hourly".
func NewReconcileScheduler(queue *Queue, schedule string, logger *slog.Logger, collections ...string) *ReconcileScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileScheduler{
		queue:       queue,
		collections: collections,
		schedule:    schedule,
		logger:      logger,
	}
}

// Start registers the schedule and starts the cron runner. If the schedule
// is empty this is a no-op.
func (s *ReconcileScheduler) Start(ctx context.Context) error {
	if s.schedule == "" {
		s.logger.Info("scheduled reconciliation disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.RunNow(ctx) }); err != nil {
		return fmt.Errorf("parse reconcile schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("scheduled reconciliation started",
		slog.String("schedule", s.schedule),
		slog.Any("collections", s.collections),
	)
	return nil
}

// Stop stops the cron runner and waits for a running job to return.
func (s *ReconcileScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("scheduled reconciliation stopped")
}

// RunNow enqueues a reconciliation of every collection immediately.
func (s *ReconcileScheduler) RunNow(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	for _, name := range s.collections {
		payload := map[string]any{task.PayloadCollection: name}
		t := task.NewTask(task.OperationReconcileCollection, int(task.PriorityBackground), payload)
		if err := s.queue.Enqueue(ctx, t); err != nil {
			s.logger.Warn("failed to enqueue reconciliation",
				slog.String("collection", name),
				slog.String("error", err.Error()),
			)
		}
	}
}
