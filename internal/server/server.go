// Package server exposes the COI tracker over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/store"
)

// DocumentExtractor turns raw certificate text into a structured certificate.
type DocumentExtractor interface {
	Extract(ctx context.Context, documentText string) (*model.Certificate, error)
}

// Config holds server settings.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// Server wires the store, the compliance service, and the optional
// extraction client behind HTTP handlers.
type Server struct {
	cfg       Config
	store     store.Store
	service   *compliance.Service
	extractor DocumentExtractor
}

// New creates a Server. extractor may be nil; certificate uploads are then
// limited to pre-structured payloads.
func New(cfg Config, st store.Store, svc *compliance.Service, extractor DocumentExtractor) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		service:   svc,
		extractor: extractor,
	}
}

// Router builds the chi router with middleware and all API routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/templates", func(r chi.Router) {
			r.Post("/", s.handleCreateTemplate)
			r.Get("/", s.handleListTemplates)
			r.Get("/{id}", s.handleGetTemplate)
		})
		r.Route("/entities", func(r chi.Router) {
			r.Post("/", s.handleCreateEntity)
			r.Get("/", s.handleListEntities)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEntity)
				r.Post("/certificates", s.handleUploadCertificate)
				r.Post("/evaluate", s.handleEvaluate)
				r.Get("/compliance", s.handleGetCompliance)
				r.Get("/results", s.handleListResults)
			})
		})
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening",
			zap.String("component", "server"),
			zap.Int("port", s.cfg.Port),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		zap.L().Info("http server shutting down", zap.String("component", "server"))
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("component", "server"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
