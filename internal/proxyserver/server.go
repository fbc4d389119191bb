package proxyserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server binds the chi router to a listen address with graceful shutdown.
type Server struct {
	router  chi.Router
	httpSrv *http.Server
}

// NewServer builds the router (request-id injection, panic recovery,
// real-IP extraction, then the proxy routes) and wraps it in an
// *http.Server bound to addr.
func NewServer(h *Handler, addr string, readTimeout, writeTimeout, idleTimeout time.Duration) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/v1/chat/completions", h.handleCompletion)
	r.Post("/v1/completions", h.handleCompletion)
	r.Get("/v1/models", h.handleModels)
	r.Get("/v1/models/{model}/slots", h.handleSlots)
	r.Get("/healthz", h.handleHealth)

	return &Server{
		router: r,
		httpSrv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
	}
}

// Router exposes the chi router for testing.
func (s *Server) Router() chi.Router { return s.router }

// Start blocks until the server is shut down or hits a fatal error.
func (s *Server) Start() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("proxyserver: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
