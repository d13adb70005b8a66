// Package api provides the REST API for the NoteScript service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/notevault/notescript/internal/config"
	"github.com/notevault/notescript/internal/engine"
	"github.com/notevault/notescript/internal/events"
	"github.com/notevault/notescript/internal/history"
	"github.com/notevault/notescript/internal/vault"
	"github.com/notevault/notescript/pkg/auth"
)

// Server is the HTTP server for the NoteScript API.
type Server struct {
	config  *config.Config
	router  chi.Router
	handler *Handler
}

// NewServer creates a new API server. The history store and publisher may be
// nil when the corresponding backends are disabled.
func NewServer(cfg *config.Config, svc vault.Service, hist *history.Store, pub *events.Publisher) *Server {
	s := &Server{config: cfg}
	ev := engine.NewEvaluatorWithDefaults(svc, engine.EvalDefaults{
		Timeout:     cfg.Engine.DefaultTimeout,
		Grace:       cfg.Engine.GracePeriod,
		MemoryLimit: cfg.Engine.MemoryLimitBytes,
	})
	s.handler = NewHandler(cfg, ev, svc, hist, pub)
	s.router = s.setupRoutes()
	return s
}

// setupRoutes configures the router with all API routes.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.Server.WriteTimeout))

	// Health check (no auth required)
	r.Get("/health", s.handler.HealthCheck)

	// API routes (with auth)
	r.Route("/api/v1", func(r chi.Router) {
		if s.config.Auth.ServiceToken != "" {
			r.Use(s.AuthMiddleware)
		}

		r.Post("/eval", s.handler.Evaluate)
		r.Get("/capabilities", s.handler.ListCapabilities)

		r.Route("/vaults", func(r chi.Router) {
			r.Post("/", s.handler.CreateVault)
			r.Get("/", s.handler.ListVaults)
			r.Get("/{id}", s.handler.GetVault)
			r.Delete("/{id}", s.handler.DeleteVault)
			r.Post("/{id}/notes", s.handler.CreateNote)
			r.Get("/{id}/notes", s.handler.ListNotes)
			r.Get("/{id}/notes/{noteId}", s.handler.GetNote)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handler.ListHistory)
			r.Get("/{id}", s.handler.GetHistory)
		})
	})

	return r
}

// AuthMiddleware validates the bearer service token.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractToken(r)
		if token == "" {
			http.Error(w, "missing authentication token", http.StatusUnauthorized)
			return
		}
		if !auth.TokenEqual(token, s.config.Auth.ServiceToken) {
			http.Error(w, "invalid authentication token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the chi router for custom configuration.
func (s *Server) Router() chi.Router {
	return s.router
}
