package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/laserpointlabs/odras/infrastructure/api"
)

func TestMCPEndpoint_Initialize(t *testing.T) {
	client := newTestClient(t)
	apiServer := api.NewAPIServer(client, nil, api.WithVersion("1.0.0"))
	handler := apiServer.Handler()

	body := mcpRequest(t, "initialize", 1, map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "0.0.1"},
	})

	w := postMCP(t, handler, body, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Result struct {
			ServerInfo struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"serverInfo"`
			Capabilities struct {
				Tools json.RawMessage `json:"tools"`
			} `json:"capabilities"`
		} `json:"result"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Result.ServerInfo.Name != "odras" {
		t.Errorf("server name = %q, want odras", resp.Result.ServerInfo.Name)
	}
	if resp.Result.ServerInfo.Version != "1.0.0" {
		t.Errorf("server version = %q, want 1.0.0", resp.Result.ServerInfo.Version)
	}
	if resp.Result.Capabilities.Tools == nil {
		t.Error("expected tools capability to be present")
	}
}

func TestMCPEndpoint_RejectsInvalidContentType(t *testing.T) {
	client := newTestClient(t)
	handler := api.NewAPIServer(client, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMCPEndpoint_JobStatusUnknownJob(t *testing.T) {
	client := newTestClient(t)
	handler := api.NewAPIServer(client, nil).Handler()
	sessionID := initMCPSession(t, handler)

	body := mcpRequest(t, "tools/call", 2, map[string]any{
		"name":      "job_status",
		"arguments": map[string]any{"job_id": "does-not-exist"},
	})
	w := postMCP(t, handler, body, sessionID)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	text, isError := toolResultText(t, w)
	if !isError {
		t.Fatalf("expected a tool error, got %s", text)
	}
	if text != "job does-not-exist not found" {
		t.Errorf("unexpected tool error: %s", text)
	}
}

// Chi's Timeout middleware must not wrap the MCP handler's ResponseWriter,
// so MCP is exercised through the full server middleware stack.
func TestMCPEndpoint_ServerMiddlewareStack(t *testing.T) {
	client := newTestClient(t)
	apiServer := api.NewAPIServer(client, nil, api.WithVersion("1.0.0"))
	apiServer.MountRoutes()

	srv := api.NewServer("", nil)
	srv.Router().Mount("/", apiServer.Router())
	handler := srv.Router()

	sessionID := initMCPSession(t, handler)

	body := mcpRequest(t, "tools/list", 2, nil)
	w := postMCP(t, handler, body, sessionID)
	if w.Code != http.StatusOK {
		t.Fatalf("tools/list: status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	callBody := mcpRequest(t, "tools/call", 3, map[string]any{
		"name":      "get_version",
		"arguments": map[string]any{},
	})
	w = postMCP(t, handler, callBody, sessionID)
	if w.Code != http.StatusOK {
		t.Fatalf("tools/call: status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	text, isError := toolResultText(t, w)
	if isError {
		t.Fatalf("get_version returned error: %s", text)
	}
	if text != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %s", text)
	}
}
