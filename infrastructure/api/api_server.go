package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/server"

	"github.com/laserpointlabs/odras"
	apimiddleware "github.com/laserpointlabs/odras/infrastructure/api/middleware"
	v1 "github.com/laserpointlabs/odras/infrastructure/api/v1"
	mcpinternal "github.com/laserpointlabs/odras/internal/mcp"
)

const (
	requestTimeout = 60 * time.Second
	healthTimeout  = 5 * time.Second
)

// APIServer provides an HTTP API backed by an odras Client.
type APIServer struct {
	client       *odras.Client
	apiKeys      []string
	corsOrigins  []string
	version      string
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// APIServerOption configures an APIServer.
type APIServerOption func(*APIServer)

// WithCORSOrigins allows browser requests from the given origins.
func WithCORSOrigins(origins ...string) APIServerOption {
	return func(a *APIServer) {
		a.corsOrigins = origins
	}
}

// WithVersion sets the version reported by /healthz and the MCP server.
func WithVersion(version string) APIServerOption {
	return func(a *APIServer) {
		a.version = version
	}
}

// NewAPIServer creates a new APIServer wired to the given odras Client.
// apiKeys configures write-protection: mutating endpoints (POST, PUT, PATCH,
// DELETE) on /api/v1/documents and /api/v1/collections require a valid key.
// Read-only endpoints, search and MCP remain open.
func NewAPIServer(client *odras.Client, apiKeys []string, opts ...APIServerOption) *APIServer {
	a := &APIServer{
		client:  client,
		apiKeys: apiKeys,
		version: "dev",
		logger:  client.Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call MountRoutes().
// If not called, ListenAndServe creates a default router with all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all routes on the router.
// Call this after adding any custom middleware via Router().Use().
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	c := a.client

	if len(a.corsOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   a.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", apimiddleware.APIKeyHeader, "Mcp-Session-Id"},
			ExposedHeaders:   []string{"Location", "Mcp-Session-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	router.Use(apimiddleware.Logging(a.logger))

	router.Get("/healthz", a.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		// Open routes; search is a read-only POST, jobs and queue are GET-only.
		r.Mount("/search", v1.NewSearchRouter(c).Routes())
		r.Mount("/jobs", v1.NewJobsRouter(c).Routes())
		r.Mount("/queue", v1.NewQueueRouter(c).Routes())

		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.WriteProtectAuth(a.apiKeys))
			r.Mount("/documents", v1.NewDocumentsRouter(c).Routes())
			r.Mount("/collections", v1.NewCollectionsRouter(c).Routes())
		})
	})

	// MCP manages its own streaming responses and session headers, so it
	// sits outside the Timeout middleware.
	mcpSrv := mcpinternal.NewServer(c.Search, c.Jobs, c.Documents, a.version, a.logger)
	router.Mount("/mcp", server.NewStreamableHTTPServer(mcpSrv.MCPServer()))
}

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Collection string `json:"collection"`
	Error      string `json:"error,omitempty"`
}

func (a *APIServer) health(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{
		Status:     "healthy",
		Version:    a.version,
		Collection: a.client.Collection().Name(),
	}
	if err := a.client.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		apimiddleware.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	apimiddleware.WriteJSON(w, http.StatusOK, resp)
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger)
	a.server = &server

	if a.routerCalled && a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}

	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
