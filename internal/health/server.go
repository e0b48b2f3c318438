// Package health exposes HTTP endpoints for liveness, detailed status
// and metrics.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/llmrelay/internal/control"
	"github.com/vietddude/llmrelay/internal/core/domain"
)

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	client *control.Client
	server *http.Server
}

// NewServer creates a new health server.
func NewServer(client *control.Client, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		client: client,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/connection/check", s.handleCheck)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth reports coarse liveness: 200 while the connection is
// usable or still being established, 503 once it is in error.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.client.GetStatus().Connection

	response := map[string]string{"status": state.Status.String()}
	w.Header().Set("Content-Type", "application/json")
	if state.Status == domain.StatusError {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// handleStatus reports the full status: connection state, quality grade,
// queue depth and cumulative stats.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.client.GetStatus())
}

// handleCheck triggers an immediate probe and reports the result.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state := s.client.CheckConnection(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}
