// Package server provides the HTTP API: job submission, polling, and the
// websocket watch stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/deepresearch/internal/metrics"
	"github.com/raphaelgruber/deepresearch/internal/service"
	"github.com/raphaelgruber/deepresearch/internal/store"
)

// Server wraps the HTTP server with its dependencies and lifecycle.
type Server struct {
	research *service.Research
	watched  *store.Watched
	metrics  *metrics.Collector
	logger   *slog.Logger
	http     *http.Server
}

// New creates the server. The watched store powers the watch endpoint; it
// must be the same store instance the pipeline writes through.
func New(addr string, research *service.Research, watched *store.Watched, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		research: research,
		watched:  watched,
		metrics:  collector,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /research", s.handleSubmit)
	mux.HandleFunc("GET /research", s.handleList)
	mux.HandleFunc("GET /research/stats", s.handleStats)
	mux.HandleFunc("GET /research/{id}", s.handleStatus)
	mux.HandleFunc("GET /research/{id}/results", s.handleResults)
	mux.HandleFunc("GET /research/{id}/watch", s.handleWatch)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s.http = &http.Server{
		Addr:        addr,
		Handler:     LoggingMiddleware(logger)(mux),
		ReadTimeout: 5 * time.Second,
		// Write timeout must outlive the watch upgrade handshake; hijacked
		// websocket connections are not subject to it.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
