package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/infrastructure/api/jsonapi"
	"github.com/laserpointlabs/odras/infrastructure/api/middleware"
)

// JobsRouter handles ingestion job endpoints.
type JobsRouter struct {
	client     *odras.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewJobsRouter creates a new JobsRouter.
func NewJobsRouter(client *odras.Client) *JobsRouter {
	return &JobsRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for job endpoints.
func (r *JobsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/{id}", r.Get)

	return router
}

// Get handles GET /api/v1/jobs/{id}.
func (r *JobsRouter) Get(w http.ResponseWriter, req *http.Request) {
	j, err := r.client.Jobs.Get(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.JobResource(j)))
}
