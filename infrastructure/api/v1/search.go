package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/infrastructure/api/jsonapi"
	"github.com/laserpointlabs/odras/infrastructure/api/middleware"
	"github.com/laserpointlabs/odras/infrastructure/api/v1/dto"
)

// SearchRouter handles search API endpoints.
type SearchRouter struct {
	client     *odras.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewSearchRouter creates a new SearchRouter.
func NewSearchRouter(client *odras.Client) *SearchRouter {
	return &SearchRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for search endpoints.
func (r *SearchRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", r.Search)

	return router
}

// Search handles POST /api/v1/search.
func (r *SearchRouter) Search(w http.ResponseWriter, req *http.Request) {
	var body dto.SearchRequest
	if err := decodeBody(w, req, &body, false); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	results, err := r.client.Search.Query(req.Context(), body.Data.Attributes.Query, queryOptions(body.Data.Attributes)...)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, r.serializer.SearchResponse(results))
}

func queryOptions(attrs dto.SearchAttributes) []search.QueryOption {
	var opts []search.QueryOption
	if attrs.ProjectID != "" {
		opts = append(opts, search.WithProjectID(attrs.ProjectID))
	}
	if attrs.Limit != nil {
		opts = append(opts, search.WithLimit(*attrs.Limit))
	}
	if attrs.MinScore != nil {
		opts = append(opts, search.WithMinScore(*attrs.MinScore))
	}
	return opts
}
