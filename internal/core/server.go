// Package core is the HTTP chassis for the Tickler ops API. It builds a chi
// router that serves both plain HTTP (local development) and AWS Lambda
// proxy integration (through chiadapter), and enforces the cross-cutting
// concerns — panic recovery, request correlation, structured logging, and
// shared-secret auth — before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tickler/internal/config"
)

// Server bundles the ops API dependencies so tests can inject their own and
// each environment can configure its own.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes back GET /health. The entry point adds probes for the
	// database pool and SQS.
	HealthProbes []HealthProbe

	// V1RouteRegistrars attach domain handler routes under /v1. The entry
	// point populates this, which keeps core free of handler imports.
	V1RouteRegistrars []func(chi.Router)

	router        *chi.Mux
	shutdownHooks []func(context.Context) error
}

// NewServer wires the router and validator, failing fast on nil critical
// dependencies. Routes are NOT mounted here; callers run MountRoutes after
// registering their routes and probes, which lets tests customize both.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler exposes the router for http.ListenAndServe and chiadapter.New.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown queues a hook for Shutdown to run, in registration order. The
// entry point uses this to close the database pool and flush telemetry.
func (s *Server) OnShutdown(hook func(context.Context) error) {
	s.shutdownHooks = append(s.shutdownHooks, hook)
}

// Shutdown runs the registered hooks in order. The first failure stops the
// sequence and is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for _, hook := range s.shutdownHooks {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			return fmt.Errorf("running shutdown hook: %w", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
