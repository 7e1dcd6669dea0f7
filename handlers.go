package odras

import (
	"log/slog"

	collectionhandler "github.com/laserpointlabs/odras/application/handler/collection"
	documenthandler "github.com/laserpointlabs/odras/application/handler/document"
	"github.com/laserpointlabs/odras/domain/task"
)

// registerHandlers registers all task handlers with the worker registry.
func (c *Client) registerHandlers() {
	c.registry.Register(task.OperationIngestDocument, documenthandler.NewIngest(c.Ingestion, c.logger))
	c.registry.Register(task.OperationReconcileCollection, collectionhandler.NewReconcile(c.Reconciler, c.logger))

	c.logger.Debug("registered task handlers", slog.Int("count", len(task.All())))
}
