// Package api implements the HTTP API serving resolved roster rows.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/netroster/internal/buildinfo"
	"github.com/nugget/netroster/internal/roster"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// RosterProvider supplies the rows served by the API. instanceID ""
// means the configured default scope.
type RosterProvider interface {
	LatestRows(ctx context.Context, instanceID string) ([]roster.CanonicalRow, time.Time, error)
}

// DependencyStatus describes the health of one external dependency for
// the health endpoint.
type DependencyStatus struct {
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	LastCheck string `json:"last_check,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	provider RosterProvider
	logger   *slog.Logger
	server   *http.Server
	deps     func() map[string]DependencyStatus
}

// SetDependencyStatus registers a callback that reports external
// dependency health, included in /healthz responses.
func (s *Server) SetDependencyStatus(fn func() map[string]DependencyStatus) {
	s.deps = fn
}

// NewServer creates a new API server.
func NewServer(address string, port int, provider RosterProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		provider: provider,
		logger:   logger,
	}
}

// Handler builds the route table. Split from Start so tests can drive
// the mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/rows", s.handleRows)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "netroster",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "healthy"}
	if s.deps != nil {
		resp["dependencies"] = s.deps()
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// RowsResponse is the /api/rows payload.
type RowsResponse struct {
	ResolvedAt time.Time             `json:"resolved_at"`
	Count      int                   `json:"count"`
	Rows       []roster.CanonicalRow `json:"rows"`
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	instance := r.URL.Query().Get("instance")

	rows, resolvedAt, err := s.provider.LatestRows(r.Context(), instance)
	if err != nil {
		s.logger.Error("rows request failed", "instance", instance, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"error": err.Error()}, s.logger)
		return
	}

	if rows == nil {
		rows = []roster.CanonicalRow{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, RowsResponse{
		ResolvedAt: resolvedAt,
		Count:      len(rows),
		Rows:       rows,
	}, s.logger)
}
