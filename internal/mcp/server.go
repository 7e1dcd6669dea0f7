// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/search"
)

const defaultSearchLimit = 10

// Searcher runs semantic queries for MCP tools.
type Searcher interface {
	Query(ctx context.Context, text string, opts ...search.QueryOption) (search.Results, error)
}

// JobLookup retrieves ingestion jobs by ID.
type JobLookup interface {
	Get(ctx context.Context, id string) (job.Job, error)
}

// DocumentLookup retrieves documents by ID.
type DocumentLookup interface {
	Get(ctx context.Context, id string) (document.Document, error)
}

// Server wraps the MCP server with document search tools.
type Server struct {
	mcpServer *server.MCPServer
	searcher  Searcher
	jobs      JobLookup
	documents DocumentLookup
	version   string
	logger    *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(searcher Searcher, jobs JobLookup, documents DocumentLookup, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		searcher:  searcher,
		jobs:      jobs,
		documents: documents,
		version:   version,
		logger:    logger,
	}

	mcpServer := server.NewMCPServer(
		"odras",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	searchTool := mcp.NewTool("search",
		mcp.WithDescription("Semantic search over ingested document chunks. Returns the best matching passages with their source document and similarity score."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query"),
		),
		mcp.WithString("project_id",
			mcp.Description("Restrict results to one project"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10)"),
		),
		mcp.WithNumber("min_score",
			mcp.Description("Drop results scoring below this value, between 0 and 1"),
		),
	)
	mcpServer.AddTool(searchTool, s.handleSearch)

	jobTool := mcp.NewTool("job_status",
		mcp.WithDescription("Get the status of an ingestion job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The ingestion job ID"),
		),
	)
	mcpServer.AddTool(jobTool, s.handleJobStatus)

	if s.documents != nil {
		documentTool := mcp.NewTool("get_document",
			mcp.WithDescription("Get a document's metadata and processing status"),
			mcp.WithString("document_id",
				mcp.Required(),
				mcp.Description("The document ID"),
			),
		)
		mcpServer.AddTool(documentTool, s.handleGetDocument)
	}

	versionTool := mcp.NewTool("get_version",
		mcp.WithDescription("Get the server version"),
	)
	mcpServer.AddTool(versionTool, s.handleGetVersion)
}

type searchHit struct {
	URI           string  `json:"uri"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	ProjectID     string  `json:"project_id"`
	Sequence      int     `json:"sequence"`
	Content       string  `json:"content"`
	Page          *int    `json:"page,omitempty"`
	Score         float64 `json:"score"`
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	opts := []search.QueryOption{
		search.WithLimit(request.GetInt("limit", defaultSearchLimit)),
	}
	if projectID := request.GetString("project_id", ""); projectID != "" {
		opts = append(opts, search.WithProjectID(projectID))
	}
	if minScore := request.GetFloat("min_score", 0); minScore > 0 {
		opts = append(opts, search.WithMinScore(minScore))
	}

	results, err := s.searcher.Query(ctx, query, opts...)
	if err != nil {
		s.logger.ErrorContext(ctx, "search failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	hits := make([]searchHit, 0, len(results.Hits()))
	for _, r := range results.Hits() {
		hits = append(hits, searchHit{
			URI:           NewChunkURI(r.DocumentID(), r.Sequence()).WithOffsets(r.StartOffset(), r.EndOffset()).String(),
			DocumentID:    r.DocumentID(),
			DocumentTitle: r.DocumentTitle(),
			ProjectID:     r.ProjectID(),
			Sequence:      r.Sequence(),
			Content:       r.Content(),
			Page:          r.Page(),
			Score:         r.Score(),
		})
	}

	return jsonResult(hits)
}

type jobStatus struct {
	ID          string     `json:"id"`
	DocumentID  string     `json:"document_id"`
	Status      string     `json:"status"`
	Model       string     `json:"model"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *Server) handleJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError("job_id is required"), nil
	}

	j, err := s.jobs.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("job %s not found", id)), nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get job", slog.String("job_id", id), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("failed to get job: %v", err)), nil
	}

	return jsonResult(jobStatus{
		ID:          j.ID(),
		DocumentID:  j.DocumentID(),
		Status:      j.Status().String(),
		Model:       j.Params().Model(),
		Error:       j.Error(),
		CreatedAt:   j.CreatedAt(),
		StartedAt:   j.StartedAt(),
		CompletedAt: j.CompletedAt(),
	})
}

type documentInfo struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Model      string `json:"model,omitempty"`
}

func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}

	d, err := s.documents.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("document %s not found", id)), nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get document", slog.String("document_id", id), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("failed to get document: %v", err)), nil
	}

	return jsonResult(documentInfo{
		ID:         d.ID(),
		ProjectID:  d.ProjectID(),
		Title:      d.Title(),
		Type:       d.Type(),
		Status:     d.Status().String(),
		ChunkCount: d.Stats().ChunkCount(),
		Model:      d.Stats().ModelName(),
	})
}

func (s *Server) handleGetVersion(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.version), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
