// Package server exposes the analyzer over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RyanBlaney/sonido-harmony/analysis"
	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/RyanBlaney/sonido-harmony/metrics"
	"github.com/RyanBlaney/sonido-harmony/storage"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Default server settings
const (
	defaultMaxBodyBytes   = 8 << 20
	readHeaderTimeout     = 10 * time.Second
	writeTimeout          = 2 * time.Minute
	serverShutdownTimeout = 10 * time.Second
	defaultRecentResults  = 50
	maxRecentResults      = 500
)

// ErrServe wraps listener failures
var ErrServe = errors.New("http serve failed")

// Server wires HTTP routes onto an analyzer
type Server struct {
	analyzer       *analysis.Analyzer
	metrics        *metrics.Manager
	store          *storage.Store
	allowedOrigins []string
	maxBodyBytes   int64
	logger         logging.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithStore stores every analysis and enables the /v1/results routes.
func WithStore(store *storage.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithAllowedOrigins sets the CORS origins; empty allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// New creates a server around analyzer
func New(analyzer *analysis.Analyzer, opts ...Option) *Server {
	s := &Server{
		analyzer:     analyzer,
		maxBodyBytes: defaultMaxBodyBytes,
		logger: logging.WithFields(logging.Fields{
			"component": "http_server",
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router registers every route on a fresh mux router
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(s.recoverMiddleware, s.metricsMiddleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/kinds", s.handleKinds).Methods(http.MethodGet)
	v1.HandleFunc("/analyze/symbolic", s.handleAnalyzeSymbolic).Methods(http.MethodPost)
	v1.HandleFunc("/analyze/audio-profile", s.handleAnalyzeAudioProfile).Methods(http.MethodPost)
	v1.HandleFunc("/label", s.handleLabel).Methods(http.MethodPost)
	if s.store != nil {
		v1.HandleFunc("/results", s.handleRecentResults).Methods(http.MethodGet)
		v1.HandleFunc("/results/{id}", s.handleGetResult).Methods(http.MethodGet)
	}

	return router
}

// Handler returns the router behind CORS
func (s *Server) Handler() http.Handler {
	opts := cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{recordIDHeader},
		MaxAge:         600,
	}
	return cors.New(opts).Handler(s.Router())
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.Fields{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%w: %w", ErrServe, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
