// Package api provides the HTTP surface of the DineAtlas daemon: the
// JSON endpoints the page controllers call, the worker message and event
// channels, and the gateway mounts for static assets and images.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dineatlas/dineatlas-client/internal/catalog"
	"github.com/dineatlas/dineatlas-client/internal/gateway"
	"github.com/dineatlas/dineatlas-client/internal/sse"
	"github.com/dineatlas/dineatlas-client/internal/syncq"
	"github.com/dineatlas/dineatlas-client/internal/validation"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	catalog    *catalog.Service
	worker     *gateway.Worker
	queue      *syncq.Queue
	sseHandler *sse.Handler
	validator  *validation.Validator
	router     *chi.Mux
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(catalogService *catalog.Service, worker *gateway.Worker, queue *syncq.Queue, sseHandler *sse.Handler, logger *slog.Logger) *Server {
	s := &Server{
		catalog:    catalogService,
		worker:     worker,
		queue:      queue,
		sseHandler: sseHandler,
		validator:  validation.New(),
		router:     chi.NewRouter(),
		logger:     logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/restaurants", func(r chi.Router) {
			r.Get("/", s.handleListRestaurants)
			r.Get("/neighborhoods", s.handleListNeighborhoods)
			r.Get("/cuisines", s.handleListCuisines)
			r.Get("/{id}", s.handleGetRestaurant)
			r.Put("/{id}/favorite", s.handleSetFavorite)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", s.handleListReviews)
			r.Post("/", s.handleCreateReview)
		})

		r.Route("/worker", func(r chi.Router) {
			r.Post("/messages", s.handleWorkerMessage)
			r.Get("/state", s.handleWorkerState)
		})

		r.Method(http.MethodGet, "/events", s.sseHandler)
	})

	// Gateway mounts: the page shell, images, and the upstream passthrough.
	if s.worker != nil {
		s.router.Get("/app/*", s.worker.ServeStatic)
		s.router.Get(s.worker.ImagePrefix()+"*", s.worker.ServeImage)
		s.router.NotFound(s.worker.Proxy)
	}
}
