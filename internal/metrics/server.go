package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server exposes metrics over HTTP
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds a metrics server on addr. Returns nil when addr is empty.
func NewServer(addr string, m *Metrics, logger *slog.Logger) *Server {
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "MetricsServer"),
	}
}

// Start serves metrics until Stop; no-op when disabled
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	s.logger.Info("Metrics server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server; no-op when disabled
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
