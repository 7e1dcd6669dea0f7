package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/chunk"
	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/search"
)

var testTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeSearch implements Searcher with a canned result and records the last query.
type fakeSearch struct {
	results search.Results
	err     error
	text    string
	config  search.QueryConfig
}

func (f *fakeSearch) Query(_ context.Context, text string, opts ...search.QueryOption) (search.Results, error) {
	f.text = text
	f.config = search.NewQueryConfig(opts...)
	return f.results, f.err
}

type fakeJobs struct {
	jobs map[string]job.Job
}

func (f *fakeJobs) Get(_ context.Context, id string) (job.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return job.Job{}, domain.Wrap(domain.ErrNotFound, "get job", nil)
	}
	return j, nil
}

type fakeDocuments struct {
	docs map[string]document.Document
}

func (f *fakeDocuments) Get(_ context.Context, id string) (document.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return document.Document{}, domain.Wrap(domain.ErrNotFound, "get document", nil)
	}
	return d, nil
}

// sendMessage marshals a JSON-RPC request, sends it through HandleMessage,
// and returns the JSONRPCResponse.
func sendMessage(t *testing.T, srv *Server, method string, id int, params map[string]any) mcp.JSONRPCResponse {
	t.Helper()

	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	result := srv.MCPServer().HandleMessage(context.Background(), raw)

	resp, ok := result.(mcp.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected JSONRPCResponse, got %T: %+v", result, result)
	}
	return resp
}

// resultJSON re-marshals the Result field through JSON into dst.
func resultJSON(t *testing.T, resp mcp.JSONRPCResponse, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		t.Fatalf("unmarshal result into %T: %v", dst, err)
	}
}

type toolResult struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) toolResult {
	t.Helper()
	resp := sendMessage(t, srv, "tools/call", 2, map[string]any{
		"name":      name,
		"arguments": args,
	})
	var result toolResult
	resultJSON(t, resp, &result)
	if len(result.Content) == 0 {
		t.Fatalf("tool %s returned no content", name)
	}
	return result
}

func testResults() search.Results {
	page := 4
	hit := search.NewResult("chunk-1", "doc-1", "proj-1", "Radar handbook", "application/pdf",
		2, "Altimeter clutter rises over water.", 900, 1340, &page, 0.91)
	return search.NewResults([]search.Result{hit}, 1, 12*time.Millisecond)
}

func testJob() job.Job {
	started := testTime.Add(time.Second)
	return job.ReconstructJob("job-1", "doc-1", job.StatusFailed,
		job.NewParams("hashing-256", chunk.StrategyHybrid, 1000, 100),
		"embedding failed: timeout", &started, nil, testTime)
}

func testDocument() document.Document {
	stats := document.NewStats(7, "hashing-256", 256, testTime, testTime.Add(time.Minute))
	return document.ReconstructDocument("doc-1", "proj-1", "Radar handbook", "application/pdf",
		document.StatusComplete, stats, testTime, testTime)
}

func testServer(searcher *fakeSearch) *Server {
	return NewServer(
		searcher,
		&fakeJobs{jobs: map[string]job.Job{"job-1": testJob()}},
		&fakeDocuments{docs: map[string]document.Document{"doc-1": testDocument()}},
		"0.1.0-test",
		nil,
	)
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "0.0.1",
		},
	}
}

func TestServer_Initialize(t *testing.T) {
	srv := testServer(&fakeSearch{})
	resp := sendMessage(t, srv, "initialize", 1, initializeParams())

	var result mcp.InitializeResult
	resultJSON(t, resp, &result)

	if result.ServerInfo.Name != "odras" {
		t.Errorf("expected server name odras, got %s", result.ServerInfo.Name)
	}
	if result.ServerInfo.Version != "0.1.0-test" {
		t.Errorf("expected version 0.1.0-test, got %s", result.ServerInfo.Version)
	}
}

func TestServer_ListTools(t *testing.T) {
	srv := testServer(&fakeSearch{})
	resp := sendMessage(t, srv, "tools/list", 1, nil)

	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	resultJSON(t, resp, &result)

	names := map[string]bool{}
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, name := range []string{"search", "job_status", "get_document", "get_version"} {
		if !names[name] {
			t.Errorf("missing %s tool", name)
		}
	}
	if len(result.Tools) != 4 {
		t.Errorf("expected 4 tools, got %d", len(result.Tools))
	}
}

func TestServer_ListTools_WithoutDocuments(t *testing.T) {
	srv := NewServer(&fakeSearch{}, &fakeJobs{}, nil, "0.1.0-test", nil)
	resp := sendMessage(t, srv, "tools/list", 1, nil)

	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	resultJSON(t, resp, &result)

	for _, tool := range result.Tools {
		if tool.Name == "get_document" {
			t.Error("get_document should not be registered without a document lookup")
		}
	}
}

func TestServer_Search(t *testing.T) {
	searcher := &fakeSearch{results: testResults()}
	srv := testServer(searcher)

	result := callTool(t, srv, "search", map[string]any{
		"query":      "altimeter clutter",
		"project_id": "proj-1",
		"limit":      3,
		"min_score":  0.5,
	})
	if result.IsError {
		t.Fatalf("search returned error: %s", result.Content[0].Text)
	}

	if searcher.text != "altimeter clutter" {
		t.Errorf("query = %q", searcher.text)
	}
	if searcher.config.ProjectID() != "proj-1" {
		t.Errorf("project_id = %q, want proj-1", searcher.config.ProjectID())
	}
	if searcher.config.Limit() != 3 {
		t.Errorf("limit = %d, want 3", searcher.config.Limit())
	}
	if searcher.config.MinScore() != 0.5 {
		t.Errorf("min_score = %v, want 0.5", searcher.config.MinScore())
	}

	var hits []searchHit
	if err := json.Unmarshal([]byte(result.Content[0].Text), &hits); err != nil {
		t.Fatalf("decode hits: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	hit := hits[0]
	if hit.DocumentTitle != "Radar handbook" || hit.Score != 0.91 {
		t.Errorf("unexpected hit: %+v", hit)
	}
	if hit.URI != "odras://documents/doc-1/chunks/2?offsets=900-1340" {
		t.Errorf("uri = %q", hit.URI)
	}
	if hit.Page == nil || *hit.Page != 4 {
		t.Errorf("page = %v, want 4", hit.Page)
	}
}

func TestServer_Search_MissingQuery(t *testing.T) {
	srv := testServer(&fakeSearch{})

	result := callTool(t, srv, "search", map[string]any{})
	if !result.IsError {
		t.Fatal("expected tool error for missing query")
	}
}

func TestServer_Search_Unavailable(t *testing.T) {
	searcher := &fakeSearch{err: domain.Wrap(domain.ErrSearchUnavailable, "query index", context.DeadlineExceeded)}
	srv := testServer(searcher)

	result := callTool(t, srv, "search", map[string]any{"query": "radar"})
	if !result.IsError {
		t.Fatal("expected tool error when search is unavailable")
	}
	if !strings.Contains(result.Content[0].Text, "search unavailable") {
		t.Errorf("unexpected error text: %s", result.Content[0].Text)
	}
}

func TestServer_JobStatus(t *testing.T) {
	srv := testServer(&fakeSearch{})

	result := callTool(t, srv, "job_status", map[string]any{"job_id": "job-1"})
	if result.IsError {
		t.Fatalf("job_status returned error: %s", result.Content[0].Text)
	}

	var status jobStatus
	if err := json.Unmarshal([]byte(result.Content[0].Text), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "failed" {
		t.Errorf("status = %q, want failed", status.Status)
	}
	if status.Error != "embedding failed: timeout" {
		t.Errorf("error = %q", status.Error)
	}
	if status.StartedAt == nil || status.CompletedAt != nil {
		t.Errorf("unexpected timestamps: started=%v completed=%v", status.StartedAt, status.CompletedAt)
	}
}

func TestServer_JobStatus_NotFound(t *testing.T) {
	srv := testServer(&fakeSearch{})

	result := callTool(t, srv, "job_status", map[string]any{"job_id": "missing"})
	if !result.IsError {
		t.Fatal("expected tool error for unknown job")
	}
	if result.Content[0].Text != "job missing not found" {
		t.Errorf("unexpected error text: %s", result.Content[0].Text)
	}
}

func TestServer_GetDocument(t *testing.T) {
	srv := testServer(&fakeSearch{})

	result := callTool(t, srv, "get_document", map[string]any{"document_id": "doc-1"})
	if result.IsError {
		t.Fatalf("get_document returned error: %s", result.Content[0].Text)
	}

	var info documentInfo
	if err := json.Unmarshal([]byte(result.Content[0].Text), &info); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if info.ChunkCount != 7 || info.Model != "hashing-256" || info.Status != "complete" {
		t.Errorf("unexpected document: %+v", info)
	}
}

func TestServer_GetVersion(t *testing.T) {
	srv := testServer(&fakeSearch{})

	result := callTool(t, srv, "get_version", map[string]any{})
	if result.Content[0].Text != "0.1.0-test" {
		t.Errorf("version = %q", result.Content[0].Text)
	}
}
