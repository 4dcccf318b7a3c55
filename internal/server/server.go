// Package server provides the HTTP API for kura.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/indexer"
	"github.com/hyperjump/kura/internal/metrics"
	"github.com/hyperjump/kura/internal/rag"
	"github.com/hyperjump/kura/internal/registry"
)

// Info is reported by the root endpoint.
type Info struct {
	Version         string `json:"version"`
	Mock            bool   `json:"mock"`
	EmbeddingModel  string `json:"embedding_model"`
	GenerationModel string `json:"generation_model"`
}

// Server is the HTTP server for the kura API.
type Server struct {
	stores   *registry.Registry
	ingestor *indexer.Ingestor
	engine   *rag.Engine
	metrics  *metrics.Metrics
	config   *config.ServerConfig
	info     Info
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. m may be nil to disable /metrics.
func NewServer(
	stores *registry.Registry,
	ingestor *indexer.Ingestor,
	engine *rag.Engine,
	m *metrics.Metrics,
	cfg *config.ServerConfig,
	info Info,
	logger *zap.Logger,
) *Server {
	return &Server{
		stores:   stores,
		ingestor: ingestor,
		engine:   engine,
		metrics:  m,
		config:   cfg,
		info:     info,
		logger:   logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeoutSecs > 0 {
		r.Use(middleware.Timeout(time.Duration(s.config.RequestTimeoutSecs) * time.Second))
	}
	r.Use(middleware.Compress(5))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", s.handleUploadForm)
		r.Post("/search", s.handleSearch)
		r.Post("/rag", s.handleRAG)
		r.Get("/stores", s.handleListStores)
		r.Get("/stores/{name}", s.handleStoreInfo)
		r.Delete("/stores/{name}", s.handleDeleteStore)
		r.Post("/stores/{name}/documents", s.handleUpload)
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
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("vector_db_dir", s.stores.Root()))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
