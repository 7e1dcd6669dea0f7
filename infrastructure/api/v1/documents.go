package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/application/service"
	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/infrastructure/api/jsonapi"
	"github.com/laserpointlabs/odras/infrastructure/api/middleware"
	"github.com/laserpointlabs/odras/infrastructure/api/v1/dto"
)

// DocumentsRouter handles document API endpoints.
type DocumentsRouter struct {
	client     *odras.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewDocumentsRouter creates a new DocumentsRouter.
func NewDocumentsRouter(client *odras.Client) *DocumentsRouter {
	return &DocumentsRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for document endpoints.
func (r *DocumentsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Post("/", r.Create)
	router.Get("/{id}", r.Get)
	router.Delete("/{id}", r.Delete)
	router.Post("/{id}/ingest", r.Ingest)
	router.Get("/{id}/chunks", r.ListChunks)
	router.Get("/{id}/jobs", r.ListJobs)

	return router
}

// List handles GET /api/v1/documents?project_id=...
func (r *DocumentsRouter) List(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	projectID := req.URL.Query().Get("project_id")
	if projectID == "" {
		middleware.WriteError(w, req, domain.Errorf(domain.ErrValidation, "list documents", "project_id query parameter is required"), r.logger)
		return
	}

	pagination := ParsePagination(req)
	docs, err := r.client.Documents.List(ctx, projectID, pagination.Options()...)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	total, err := r.client.Documents.Count(ctx, projectID)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, &jsonapi.Document{
		Data:  r.serializer.DocumentResources(docs),
		Meta:  PaginationMeta(pagination, total),
		Links: PaginationLinks(req, pagination, total),
	})
}

// Create handles POST /api/v1/documents.
func (r *DocumentsRouter) Create(w http.ResponseWriter, req *http.Request) {
	var body dto.DocumentCreateRequest
	if err := decodeBody(w, req, &body, false); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	attrs := body.Data.Attributes
	d, err := r.client.Documents.Register(req.Context(), attrs.ProjectID, attrs.Title, attrs.Type, attrs.Text)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, jsonapi.NewSingleResponse(r.serializer.DocumentResource(d)))
}

// Get handles GET /api/v1/documents/{id}.
func (r *DocumentsRouter) Get(w http.ResponseWriter, req *http.Request) {
	d, err := r.client.Documents.Get(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.DocumentResource(d)))
}

// Delete handles DELETE /api/v1/documents/{id}.
func (r *DocumentsRouter) Delete(w http.ResponseWriter, req *http.Request) {
	if err := r.client.Documents.Delete(req.Context(), chi.URLParam(req, "id")); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Ingest handles POST /api/v1/documents/{id}/ingest. The job runs in the
// background; the response carries its ID for polling.
func (r *DocumentsRouter) Ingest(w http.ResponseWriter, req *http.Request) {
	var body dto.IngestRequest
	if err := decodeBody(w, req, &body, true); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	attrs := body.Data.Attributes
	j, err := r.client.Ingestion.Submit(req.Context(), chi.URLParam(req, "id"), service.IngestParams{
		Model:     attrs.Model,
		Strategy:  attrs.Strategy,
		ChunkSize: attrs.ChunkSize,
		Overlap:   attrs.Overlap,
	})
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+j.ID())
	middleware.WriteJSON(w, http.StatusAccepted, jsonapi.NewSingleResponse(r.serializer.JobResource(j)))
}

// ListChunks handles GET /api/v1/documents/{id}/chunks.
func (r *DocumentsRouter) ListChunks(w http.ResponseWriter, req *http.Request) {
	chunks, err := r.client.Documents.Chunks(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewListResponse(r.serializer.ChunkResources(chunks)))
}

// ListJobs handles GET /api/v1/documents/{id}/jobs.
func (r *DocumentsRouter) ListJobs(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id := chi.URLParam(req, "id")

	if _, err := r.client.Documents.Get(ctx, id); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	jobs, err := r.client.Jobs.ListByDocument(ctx, id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewListResponse(r.serializer.JobResources(jobs)))
}
