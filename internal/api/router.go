package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Matching pipeline and breed identification.
	r.Post("/match", h.Match)
	r.Post("/identify", h.Identify)

	// Known-cat roster.
	r.Get("/cats", h.ListCats)

	// Community feed.
	r.Get("/sightings", h.ListSightings)
	r.Post("/sightings", h.CreateSighting)

	// Campus map.
	r.Get("/locations", h.Locations)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
