package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/kiranshivaraju/pixelfix/internal/api/middleware"
	"github.com/kiranshivaraju/pixelfix/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	// RateLimit is optional; without it the enhance route is unthrottled.
	RateLimit *mw.RateLimit

	HealthHandler   http.HandlerFunc
	IndexHandler    http.HandlerFunc
	StaticHandler   http.Handler
	EnhanceHandler  http.HandlerFunc
	ProgressHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Frontend
	r.Get("/", orNotImplemented(deps.IndexHandler))
	if deps.StaticHandler != nil {
		r.Handle("/static/*", deps.StaticHandler)
	}

	r.Get("/api/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}
		r.Post("/api/enhance", orNotImplemented(deps.EnhanceHandler))
	})
	r.Get("/api/enhance/{requestID}/progress", orNotImplemented(deps.ProgressHandler))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not yet implemented")
	}
}
