// Package api implements the HTTP surface of the image generation service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"imageforge/admission"
	"imageforge/db"
	"imageforge/logging"
	"imageforge/metrics"
	"imageforge/pipeline"

	"go.uber.org/zap"
)

// Server is the HTTP server for the generation API.
//
// Routes:
//
//	POST /api/images/generate  - run a generation request
//	GET  /api/images/{id}      - fetch stored image metadata
//	GET  /images/...           - serve stored image blobs
//	GET  /health               - liveness probe
//	GET  /metrics              - Prometheus scrape endpoint
type Server struct {
	config    ServerConfig
	validator *pipeline.Validator
	limiter   *admission.Limiter
	pipeline  *pipeline.Pipeline
	repo      *db.ImageRepository
	logger    *logging.Logger
	metrics   metrics.Metrics

	httpServer *http.Server
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	// Host is the bind address (default: 0.0.0.0)
	Host string

	// Port is the listen port (default: 8080)
	Port int

	// ImagesDir is the directory of stored blobs served under PublicBaseURL
	ImagesDir string

	// PublicBaseURL is the URL prefix for stored blobs (default: /images)
	PublicBaseURL string

	// ReadTimeout bounds request reads (default: 30s)
	ReadTimeout time.Duration

	// WriteTimeout bounds response writes. Generation requests block until
	// the queue worker finishes, so this must exceed the provider timeout
	// (default: 5m)
	WriteTimeout time.Duration
}

// DefaultServerConfig returns sensible server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		PublicBaseURL: "/images",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  5 * time.Minute,
	}
}

// NewServer creates the HTTP server over the assembled pipeline components.
func NewServer(validator *pipeline.Validator, limiter *admission.Limiter, pl *pipeline.Pipeline, repo *db.ImageRepository, logger *logging.Logger, m metrics.Metrics, config ServerConfig) (*Server, error) {
	if validator == nil {
		return nil, fmt.Errorf("api: validator cannot be nil")
	}
	if limiter == nil {
		return nil, fmt.Errorf("api: limiter cannot be nil")
	}
	if pl == nil {
		return nil, fmt.Errorf("api: pipeline cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("api: image repository cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("api: logger cannot be nil")
	}
	if m == nil {
		m = metrics.Noop{}
	}

	defaults := DefaultServerConfig()
	if config.Host == "" {
		config.Host = defaults.Host
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.PublicBaseURL == "" {
		config.PublicBaseURL = defaults.PublicBaseURL
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	s := &Server{
		config:    config,
		validator: validator,
		limiter:   limiter,
		pipeline:  pl,
		repo:      repo,
		logger:    logger.Named("api"),
		metrics:   m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/images/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/images/{id}", s.handleGetImage)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	if config.ImagesDir != "" {
		prefix := config.PublicBaseURL + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(config.ImagesDir))))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      loggingMiddleware(logger, mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s, nil
}

// Start begins serving. Blocks until the server stops; http.ErrServerClosed
// is returned after a graceful Shutdown and should be treated as success.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// handleHealth implements the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"queueDepth": s.pipeline.QueueDepth(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
