package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/infrastructure/api/jsonapi"
	"github.com/laserpointlabs/odras/infrastructure/api/middleware"
)

// CollectionsRouter handles vector collection endpoints.
type CollectionsRouter struct {
	client     *odras.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewCollectionsRouter creates a new CollectionsRouter.
func NewCollectionsRouter(client *odras.Client) *CollectionsRouter {
	return &CollectionsRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for collection endpoints.
func (r *CollectionsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/{name}/reconcile", r.Reconcile)

	return router
}

// Reconcile handles POST /api/v1/collections/{name}/reconcile. The pass
// runs synchronously and the response is its report.
func (r *CollectionsRouter) Reconcile(w http.ResponseWriter, req *http.Request) {
	report, err := r.client.Reconciler.Reconcile(req.Context(), chi.URLParam(req, "name"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	resource := r.serializer.ReconcileReportResource(report.Collection, report.Repaired, report.OrphansRemoved, report.Failed, report.Elapsed)
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(resource))
}
