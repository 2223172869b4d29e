package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline on request contexts, set one
// second under the Lambda timeout so handlers see cancellation before the
// runtime kills the process.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Ops-Token",
}

// MountRoutes builds the routing tree: global middleware, the token-guarded
// /v1 group, and the public health check.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	// Domain handlers hang off /v1 through V1RouteRegistrars, which the
	// entry point fills in. Everything under /v1 requires the ops token.
	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.OpsTokenMiddleware)
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware installs the chain in a fixed order: Recoverer
// outermost so it catches everything, then the context timeout, request ID,
// security headers, the structured request logger (with header redaction),
// and CORS innermost.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}
