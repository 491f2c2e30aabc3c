package api

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/starford/verba/internal/annotation"
	"github.com/starford/verba/internal/checklist"
	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/highlight"
	"github.com/starford/verba/internal/models"
	"github.com/starford/verba/internal/storage"
	"github.com/starford/verba/internal/store"
)

// Importer receives entry groups and decisions produced upstream.
type Importer interface {
	UpsertGroup(ctx context.Context, g models.EntryGroup) error
	UpsertDecision(ctx context.Context, d models.Decision) error
}

// DocumentSync re-examines one document after it was written.
type DocumentSync interface {
	Apply(ctx context.Context, path string) error
}

// Deps are the engine parts the API exposes.
type Deps struct {
	Highlights *highlight.Service
	Board      *annotation.Board
	Checklist  *checklist.Service
	Catalog    store.Catalog
	Importer   Importer
	Documents  storage.Provider
	// DocumentSync is optional; without it uploads rely on the watcher.
	DocumentSync DocumentSync
	// Events is optional; without it /events is not mounted and imports
	// are not broadcast.
	Events *events.Broker
}

// Handler holds API route handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d}
}

// NewRouter creates a chi router with all API routes mounted. When
// authEnabled is set every route requires token as a bearer token; the event
// stream also takes it as an access_token query parameter.
func NewRouter(d Deps, authEnabled bool, token string) chi.Router {
	h := NewHandler(d)

	var auth *tokenAuth
	if authEnabled {
		auth = newTokenAuth(token)
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Bearer)
		}

		// Documents.
		r.Get("/documents", h.ListDocuments)
		r.Get("/documents/{doc}/file", h.ServeDocument)
		r.Put("/documents/{doc}/file", h.UploadDocument)

		// Highlights.
		r.Get("/documents/{doc}/highlights", h.ListHighlights)
		r.Post("/documents/{doc}/highlights", h.CreateHighlights)
		r.Get("/documents/{doc}/pages/{page}/highlights", h.PageHighlights)
		r.Delete("/highlights/{id}", h.DeleteHighlight)

		// Annotations.
		r.Get("/documents/{doc}/annotations", h.ListAnnotations)
		r.Post("/documents/{doc}/annotations", h.CreateAnnotation)
		r.Patch("/annotations/{id}", h.UpdateAnnotation)
		r.Delete("/annotations/{id}", h.DeleteAnnotation)
		r.Post("/annotations/{id}/connectors", h.AddConnector)

		// Checklist.
		r.Get("/processes/{pid}/entries", h.ListEntries)
		r.Get("/processes/{pid}/stats", h.Stats)
		r.Get("/processes/{pid}/rollup", h.Rollup)
		r.Get("/processes/{pid}/groups", h.ListGroups)
		r.Put("/processes/{pid}/groups", h.ImportGroups)
		r.Get("/processes/{pid}/decisions", h.ListDecisions)
		r.Put("/processes/{pid}/decisions", h.ImportDecisions)
		r.Post("/entries/{id}/advance", h.AdvanceEntry)
		r.Post("/entries/{id}/regress", h.RegressEntry)
		r.Put("/entries/{id}/checks/{role}", h.SetEntryCheck)
		r.Get("/entries/{id}/highlights", h.EntryHighlights)
		r.Get("/entries/{id}/decision", h.EntryDecision)

		// Search.
		r.Get("/search", h.Search)
	})

	if d.Events != nil {
		r.Group(func(r chi.Router) {
			if auth != nil {
				r.Use(auth.Stream)
			}
			r.Get("/events", d.Events.ServeHTTP)
		})
	}

	return r
}
