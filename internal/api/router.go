package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(p Provider, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(p)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/ranking", h.Ranking)
	r.Get("/plan", h.Plan)
	r.Get("/runs", h.Runs)
	r.Get("/runs/{id}/operations", h.RunOperations)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
