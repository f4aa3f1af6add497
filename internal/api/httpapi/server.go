// Package httpapi exposes fragment merging and diagnostics over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/quranload/audiocore/internal/app/merge"
	"github.com/quranload/audiocore/internal/infra/devlog"
)

// Merger concatenates fragments.
type Merger interface {
	Concatenate(ctx context.Context, fragments []string) merge.Result
}

// HealthChecker reports whether the merge engine can run.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	MetricsPath     string
}

// Server serves the HTTP API.
type Server struct {
	config Config
	merger Merger
	health HealthChecker
	logs   *devlog.Ring
}

// NewServer creates a new server. logs may be nil, in which case /debug/logs is empty.
func NewServer(config Config, merger Merger, health HealthChecker, logs *devlog.Ring) *Server {
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		config: config,
		merger: merger,
		health: health,
		logs:   logs,
	}
}

// Handler returns the routed handler without the h2c wrapper.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/v1/merge", s.handleMerge).Methods(http.MethodPost)
	router.HandleFunc("/debug/logs", s.handleLogs).Methods(http.MethodGet)
	router.HandleFunc("/debug/logs", s.handleClearLogs).Methods(http.MethodDelete)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.config.MetricsEnabled {
		router.Handle(s.config.MetricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              s.config.Addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("httpapi: starting server: addr=%s", s.config.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	select {
	case <-ctx.Done():
		zlog.Info().Msg("httpapi: shutting down")
	case err, ok := <-serverErrCh:
		if ok {
			return errors.Wrap(err, "server error")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown server")
	}

	zlog.Info().Msg("httpapi: server stopped")
	return nil
}
