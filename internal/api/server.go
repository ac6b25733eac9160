package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP surface over the insight aggregator.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  Config
}

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 20

// NewServer builds the router over deps.
func NewServer(cfg Config, deps Deps) *Server {
	handler := NewHandler(cfg, deps)
	router := chi.NewRouter()

	// Recover sits inside tracing and logging so a recovered 500 is
	// recorded by both.
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", deps.Metrics.Handler())

	router.Route("/users/{id}", func(r chi.Router) {
		r.Get("/insight", handler.GetInsight)
		r.Get("/recommendation", handler.GetRecommendation)
	})
	// Path of the original single-endpoint API.
	router.Get("/user_insight/{id}", handler.GetInsight)

	router.With(middleware.RequestSize(maxBodyBytes)).Post("/insights/batch", handler.BatchInsights)

	router.Route("/rules", func(r chi.Router) {
		r.Get("/", handler.ListRules)
		r.With(middleware.RequestSize(maxBodyBytes)).Post("/", handler.CreateRule)
		r.Post("/reload", handler.ReloadRules)
		r.Get("/{id}", handler.GetRule)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("http server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the router to tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler exposes the handler to tests.
func (s *Server) Handler() *Handler {
	return s.handler
}
