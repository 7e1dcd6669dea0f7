// Package document holds task handlers for document operations.
package document

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/laserpointlabs/odras/application/handler"
	"github.com/laserpointlabs/odras/domain/task"
)

// Runner executes a submitted ingestion job.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Ingest handles the odras.document.ingest task operation.
type Ingest struct {
	runner Runner
	logger *slog.Logger
}

// NewIngest creates a new Ingest handler.
func NewIngest(runner Runner, logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingest{runner: runner, logger: logger}
}

// Execute runs the job named in the payload. The outcome is recorded on
// the job; the returned error only tells the worker the task failed.
func (h *Ingest) Execute(ctx context.Context, payload map[string]any) error {
	p, err := handler.ExtractDocumentPayload(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", task.OperationIngestDocument, err)
	}

	h.logger.Debug("running ingestion job",
		slog.String("document_id", p.DocumentID()),
		slog.String("job_id", p.JobID()),
	)
	return h.runner.Run(ctx, p.JobID())
}
