package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"praetor-hq/tribune/pkg/config"
	"praetor-hq/tribune/pkg/telemetry/health"
	"praetor-hq/tribune/pkg/telemetry/metrics"
)

// Server is tribune's HTTP server.
type Server struct {
	config    *config.ServerConfig
	logger    *slog.Logger
	handlers  *Handlers
	checker   *health.Checker
	collector *metrics.Collector

	httpServer   *http.Server
	shutdownOnce sync.Once
	shutdownChan chan struct{}
}

// NewServer wires handlers, health checks, and metrics into a server.
// checker and collector may be nil.
func NewServer(cfg *config.ServerConfig, handlers *Handlers, checker *health.Checker, collector *metrics.Collector) *Server {
	return &Server{
		config:       cfg,
		logger:       slog.Default().With("component", "server"),
		handlers:     handlers,
		checker:      checker,
		collector:    collector,
		shutdownChan: make(chan struct{}),
	}
}

// Start runs the server and blocks until the context is cancelled, a
// termination signal arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.routes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received signal, shutting down", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return nil
	}
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		defer close(s.shutdownChan)
		if s.httpServer == nil {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/compile", s.handlers.Compile)
	mux.HandleFunc("POST /v1/activate", s.handlers.Activate)
	mux.HandleFunc("POST /v1/execute", s.handlers.Execute)
	mux.HandleFunc("PUT /v1/contexts/{tenant}/{entity}", s.handlers.IngestContext)
	mux.HandleFunc("GET /v1/traces", s.handlers.ListTraces)
	mux.HandleFunc("GET /v1/traces/{id}", s.handlers.GetTrace)
	mux.HandleFunc("POST /v1/traces/{id}/replay", s.handlers.Replay)

	if s.checker != nil {
		mux.HandleFunc("GET /health", s.checker.Healthz)
		mux.HandleFunc("GET /ready", s.checker.Readyz)
	}
	if s.collector != nil {
		mux.Handle("GET /metrics", s.collector.Handler())
	}

	var handler http.Handler = mux
	handler = MetricsMiddleware(s.collector.Server())(handler)
	handler = LoggingMiddleware(handler)
	handler = RecoveryMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}
