package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/application/service"
	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/task"
	"github.com/laserpointlabs/odras/infrastructure/api/jsonapi"
	"github.com/laserpointlabs/odras/infrastructure/api/middleware"
)

// QueueRouter exposes the pending task queue.
type QueueRouter struct {
	client     *odras.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewQueueRouter creates a new QueueRouter.
func NewQueueRouter(client *odras.Client) *QueueRouter {
	return &QueueRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for queue endpoints.
func (r *QueueRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)

	return router
}

// List handles GET /api/v1/queue?task_type=...
func (r *QueueRouter) List(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	pagination := ParsePagination(req)

	params := &service.TaskListParams{
		Limit:  pagination.Limit(),
		Offset: pagination.Offset(),
	}
	if taskType := req.URL.Query().Get("task_type"); taskType != "" {
		op := task.Operation(taskType)
		if !knownOperation(op) {
			middleware.WriteError(w, req, domain.Errorf(domain.ErrValidation, "list queue", "unknown task_type %q", taskType), r.logger)
			return
		}
		params.Operation = &op
	}

	tasks, err := r.client.Tasks.List(ctx, params)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	total, err := r.client.Tasks.Count(ctx)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, &jsonapi.Document{
		Data:  r.serializer.TaskResources(tasks),
		Meta:  PaginationMeta(pagination, total),
		Links: PaginationLinks(req, pagination, total),
	})
}

func knownOperation(op task.Operation) bool {
	for _, known := range task.All() {
		if op == known {
			return true
		}
	}
	return false
}
