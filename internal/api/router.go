package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced. The event
// stream is mounted only when the handler has a broker.
func NewRouter(h *Handler, authEnabled bool, token string) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Templates.
	r.Get("/templates", h.ListTemplates)
	r.Get("/templates/{kind}", h.GetTemplate)
	r.Put("/templates/{kind}", h.UpdateTemplate)
	r.Put("/frontmatter", h.UpdateFrontmatter)
	r.Post("/render/{kind}", h.Render)

	// Literature notes.
	r.Post("/literature-notes", h.CreateLiteratureNote)
	r.Get("/literature-notes/{key}", h.LiteratureNotes)
	r.Get("/citations/{key}", h.Citation)

	if h.events != nil {
		r.Get("/events", h.events.ServeHTTP)
	}

	return r
}
