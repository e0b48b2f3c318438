package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietddude/llmrelay/internal/control"
	"github.com/vietddude/llmrelay/internal/core/config"
)

func newTestServer(t *testing.T, llmURL string) *Server {
	t.Helper()

	cfg := config.AppConfig{}
	cfg.ApplyDefaults()
	cfg.LLM.URL = llmURL
	cfg.Fallback.Production = true
	cfg.Health.CheckInterval = -1

	client, err := control.NewClient(cfg, control.Deps{})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return NewServer(client, 0)
}

func (s *Server) serve(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint_OKWhileDisconnected(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	rec := s.serve(http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 before any probe ran", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "disconnected" {
		t.Errorf("status = %q, want disconnected", body["status"])
	}
}

func TestHealthEndpoint_503OnError(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	// Force a failed probe so the connection state moves to error.
	s.client.CheckConnection(context.Background())

	rec := s.serve(http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 in error state", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	rec := s.serve(http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var status control.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status.Quality != "unknown" {
		t.Errorf("quality = %q, want unknown", status.Quality)
	}
}

func TestCheckEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.2"}]}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, upstream.URL)

	if rec := s.serve(http.MethodGet, "/connection/check"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}

	rec := s.serve(http.MethodPost, "/connection/check")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var state struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if state.Status != "connected" {
		t.Errorf("status = %q, want connected", state.Status)
	}
}
