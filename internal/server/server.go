// Package server exposes the HTTP surface of the daemon: the GitHub webhook
// receiver, health and status endpoints, queue inspection, and static serving
// of published feeds and audio.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"prcast/internal/config"
	"prcast/internal/intake"
	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/workflow"
)

// HealthReporter aggregates stage readiness and queue counts.
type HealthReporter interface {
	Health(ctx context.Context) (workflow.Health, error)
}

// Server hosts the daemon's HTTP endpoints.
type Server struct {
	cfg    *config.Config
	store  *queue.Store
	intake *intake.Intake
	health HealthReporter
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

// New builds a server. It does not listen until Start is called.
func New(cfg *config.Config, store *queue.Store, in *intake.Intake, health HealthReporter, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		intake: in,
		health: health,
		logger: logging.NewComponentLogger(logger, "api-server"),
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the route table. Exposed so tests can drive the endpoints
// without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/github", s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/queue", s.handleQueue)
	mux.HandleFunc("/api/queue/", s.handleQueueItem)
	mux.Handle("/feeds/", http.StripPrefix("/feeds/", http.FileServer(http.Dir(s.cfg.Paths.FeedsDir))))
	mux.Handle("/audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(s.cfg.Paths.AudioDir))))
	return mux
}

// Start begins serving on the configured bind address and shuts down when the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return errors.New("api bind address not configured")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr reports the bound listen address, or an empty string before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
