package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsync/internal/contactservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *contactservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sync runs.
	r.Post("/sync", h.Sync)
	r.Get("/status", h.Status)
	r.Get("/runs", h.Runs)

	// Synced contacts.
	r.Get("/contacts", h.ListContacts)
	r.Get("/contacts/{uid}", h.GetContact)
	r.Get("/notes", h.ListNotes)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
