package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tokenvault/server/internal/http/handlers"
	"github.com/tokenvault/server/internal/logging"
	"github.com/tokenvault/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(verifyHandler *handlers.VerifyHandler, healthHandler *handlers.HealthHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(logging.Logger))
	r.Use(middleware.Recoverer(logging.Logger))
	r.Use(middleware.CORSHeaders)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", healthHandler.ServeHTTP)

	// Every method is routed to the handler so non-POST requests get its JSON 405.
	// The .php path is kept for clients still calling the legacy URL.
	r.Route("/api", func(r chi.Router) {
		r.Handle("/verify-credentials", verifyHandler)
		r.Handle("/verify-credentials.php", verifyHandler)
	})

	return r
}
