// Package server provides the HTTP API for a review session.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/wakeru/internal/config"
	"github.com/hyperjump/wakeru/internal/session"
)

// InboxService reports the directories being watched.
type InboxService interface {
	Directories() []string
}

// Server is the HTTP server for the session API.
type Server struct {
	session *session.Session
	config  *config.ServerConfig
	inbox   InboxService
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server over sess. inbox may be nil when no directories are watched.
func NewServer(sess *session.Session, cfg *config.ServerConfig, inbox InboxService, logger *zap.Logger) *Server {
	return &Server{
		session: sess,
		config:  cfg,
		inbox:   inbox,
		logger:  logger,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5, "application/json", "text/csv"))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Post("/documents", s.handleUpload)
		r.Get("/documents", s.handleListDocuments)
		r.Delete("/documents", s.handleReset)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Get("/labels", s.handleLabels)
		r.Get("/entities", s.handleEntities)
		r.Post("/clusters", s.handleCluster)
		r.Get("/search", s.handleSearch)
	})
	return r
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
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
