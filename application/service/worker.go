package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/laserpointlabs/odras/domain/task"
	"github.com/laserpointlabs/odras/internal/log"
)

// ErrNoHandler indicates no handler is registered for the operation.
var ErrNoHandler = errors.New("no handler registered")

// Handler executes a specific task operation.
type Handler interface {
	Execute(ctx context.Context, payload map[string]any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload map[string]any) error

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, payload map[string]any) error {
	return f(ctx, payload)
}

// Registry manages task handlers for different operations.
type Registry struct {
	handlers map[task.Operation]Handler
	mu       sync.RWMutex
}

// NewRegistry creates a new handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[task.Operation]Handler),
	}
}

// Register registers a handler for an operation.
// Subsequent registrations for the same operation overwrite the previous handler.
func (r *Registry) Register(operation task.Operation, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[operation] = handler
}

// Handler returns the handler for an operation.
func (r *Registry) Handler(operation task.Operation) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[operation]
	return handler, ok
}

// Validate checks that every operation in task.All has a handler.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []error
	for _, op := range task.All() {
		if _, ok := r.handlers[op]; !ok {
			missing = append(missing, fmt.Errorf("%w: %s", ErrNoHandler, op))
		}
	}
	return errors.Join(missing...)
}

// Worker processes tasks from the queue.
type Worker struct {
	store      task.TaskStore
	registry   *Registry
	logger     *slog.Logger
	pollPeriod time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewWorker creates a new queue worker.
func NewWorker(store task.TaskStore, registry *Registry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:      store,
		registry:   registry,
		logger:     logger,
		pollPeriod: time.Second,
	}
}

// WithPollPeriod sets the poll period for checking new tasks.
func (w *Worker) WithPollPeriod(d time.Duration) *Worker {
	if d > 0 {
		w.pollPeriod = d
	}
	return w
}

// Start begins processing tasks from the queue.
// The worker runs in a goroutine and can be stopped with Stop().
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Go(func() {
		w.run(ctx)
	})

	w.logger.Info("queue worker started", slog.Duration("poll_period", w.pollPeriod))
}

// Stop gracefully shuts down the worker.
// It waits for the current task to complete before returning.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.logger.Info("queue worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain everything that is queued before waiting again.
			for {
				found, err := w.ProcessOne(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					w.logger.Error("error processing task", slog.String("error", err.Error()))
					break
				}
				if !found {
					break
				}
			}
		}
	}
}

// ProcessOne dequeues and runs a single task. It reports whether a task
// was found.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	t, found, err := w.store.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	w.processTask(ctx, t)
	return true, nil
}

// processTask runs the task's handler. The task was removed from the queue
// when it was dequeued; failed tasks are not retried, their outcome is
// recorded by the handler itself.
func (w *Worker) processTask(ctx context.Context, t task.Task) {
	start := time.Now()
	ctx = log.WithCorrelationID(ctx, uuid.NewString())
	logger := w.logger.With(
		slog.Int64("task_id", t.ID()),
		slog.String("operation", t.Operation().String()),
		slog.String("correlation_id", log.CorrelationID(ctx)),
	)

	h, ok := w.registry.Handler(t.Operation())
	if !ok {
		logger.Error("no handler for operation")
		return
	}

	logger.Info("processing task")
	if err := w.executeWithRecovery(ctx, h, t); err != nil {
		logger.Error("task execution failed", slog.String("error", err.Error()))
		return
	}

	logger.Info("task completed", slog.Duration("duration", time.Since(start)))
}

func (w *Worker) executeWithRecovery(ctx context.Context, h Handler, t task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Execute(ctx, t.Payload())
}
