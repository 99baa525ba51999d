// Package server provides the HTTP API for the rulebook service.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/indexer"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/service"
	"github.com/hyperjump/rulebook/internal/volume"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Backend is the service surface the HTTP API exposes.
type Backend interface {
	Rebuild(ctx context.Context, kind models.IndexKind) (*indexer.BuildReport, error)
	Query(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error)
	SelectVolumes(ctx context.Context, query string, beamWidth int) ([]volume.Scored, error)
	Volumes() []volume.Descriptor
	SaveDocument(name string, r io.Reader) (string, error)
	ClearDocuments() error
	Status() (*service.Status, error)
}

// Server is the HTTP server for the rulebook API.
type Server struct {
	backend  Backend
	config   *config.ServerConfig
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	server   *http.Server
}

// NewServer creates a server. gatherer may be nil, in which case /metrics is not mounted.
func NewServer(backend Backend, cfg *config.ServerConfig, logger *zap.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		backend:  backend,
		config:   cfg,
		logger:   logger,
		gatherer: gatherer,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/volumes", s.handleVolumes)
		r.Post("/documents", s.handleUpload)
		r.Delete("/documents", s.handleClearDocuments)
		r.Post("/indexes/{kind}/rebuild", s.handleRebuild)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(120 * time.Second))
			r.Use(middleware.Compress(5))
			r.Post("/query", s.handleQuery)
			r.Post("/volumes/select", s.handleSelectVolumes)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
