// Package server serves recorded scheduler runs and live scheduler state
// over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/uthreads/internal/scheduler"
	"github.com/me/uthreads/internal/store"
)

// LiveSource exposes the state a running scheduler last published.
type LiveSource interface {
	Published() *scheduler.Snapshot
}

// Server is the uthreads inspector API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	store     store.Store
	live      LiveSource          // optional; nil when no scheduler runs in-process
	gatherer  prometheus.Gatherer // optional; /metrics is not served when nil
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithLive attaches an in-process scheduler for /api/v1/live.
func WithLive(src LiveSource) Option {
	return func(s *Server) {
		s.live = src
	}
}

// WithMetrics serves the gatherer's metrics on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a new Server with all routes registered.
func New(st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		store:     st,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/live", s.handleLive)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Delete("/", s.handleDeleteRun)
				r.Get("/events", s.handleListEvents)
			})
		})
	})
}
