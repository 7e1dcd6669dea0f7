// Package collection holds task handlers for vector collection operations.
package collection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/laserpointlabs/odras/application/handler"
	"github.com/laserpointlabs/odras/application/service"
	"github.com/laserpointlabs/odras/domain/task"
)

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context, collection string) (service.Report, error)
}

// Reconcile handles the odras.collection.reconcile task operation.
type Reconcile struct {
	reconciler Reconciler
	logger     *slog.Logger
}

// NewReconcile creates a new Reconcile handler.
func NewReconcile(reconciler Reconciler, logger *slog.Logger) *Reconcile {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconcile{reconciler: reconciler, logger: logger}
}

// Execute reconciles the collection named in the payload.
func (h *Reconcile) Execute(ctx context.Context, payload map[string]any) error {
	name, err := handler.ExtractString(payload, task.PayloadCollection)
	if err != nil {
		return fmt.Errorf("%s: %w", task.OperationReconcileCollection, err)
	}

	report, err := h.reconciler.Reconcile(ctx, name)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", name, err)
	}
	if report.Failed > 0 {
		h.logger.Warn("reconciliation left failures",
			slog.String("collection", name),
			slog.Int("failed", report.Failed),
		)
	}
	return nil
}
