package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/starford/verba/internal/checklist"
	"github.com/starford/verba/internal/models"
	"github.com/starford/verba/internal/xref"
)

// ensureLoaded pulls the collection of pid into the checklist service on
// first use.
func (h *Handler) ensureLoaded(ctx context.Context, pid string) error {
	if h.Checklist.Loaded(pid) {
		return nil
	}
	return h.Checklist.Load(ctx, pid)
}

// entry returns the in-memory entry id, loading its process when needed.
func (h *Handler) entry(ctx context.Context, id string) (models.LedgerEntry, error) {
	if e, ok := h.Checklist.Entry(id); ok {
		return e, nil
	}
	stored, err := h.Catalog.GetEntry(ctx, id)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if err := h.Checklist.Load(ctx, stored.ProcessID); err != nil {
		return models.LedgerEntry{}, err
	}
	if e, ok := h.Checklist.Entry(id); ok {
		return e, nil
	}
	return stored, nil
}

// ListEntries handles GET /api/processes/{pid}/entries.
//
//	@Summary		List the ledger entries of a process
//	@Tags			checklist
//	@Produce		json
//	@Param			pid	path		string	true	"Process id"
//	@Success		200	{object}	EntryListResponse
//	@Security		BearerAuth
//	@Router			/processes/{pid}/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	pid := pathParam(r, "pid")
	if err := h.ensureLoaded(r.Context(), pid); err != nil {
		writeError(w, "list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, EntryListResponse{
		Entries: h.Checklist.Entries(pid),
		Stats:   h.Checklist.Stats(pid),
	})
}

// Stats handles GET /api/processes/{pid}/stats.
//
//	@Summary		Checklist progress of a process
//	@Tags			checklist
//	@Produce		json
//	@Param			pid	path		string	true	"Process id"
//	@Success		200	{object}	checklist.Stats
//	@Security		BearerAuth
//	@Router			/processes/{pid}/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	pid := pathParam(r, "pid")
	if err := h.ensureLoaded(r.Context(), pid); err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Checklist.Stats(pid))
}

// Rollup handles GET /api/processes/{pid}/rollup. The last rollup seen by
// this process wins over the stored one.
func (h *Handler) Rollup(w http.ResponseWriter, r *http.Request) {
	pid := pathParam(r, "pid")
	if ru, ok := h.Checklist.Rollup(pid); ok {
		writeJSON(w, http.StatusOK, ru)
		return
	}
	ru, err := h.Catalog.GetRollup(r.Context(), pid)
	if err != nil {
		writeError(w, "rollup", err)
		return
	}
	writeJSON(w, http.StatusOK, ru)
}

// ListGroups handles GET /api/processes/{pid}/groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Catalog.ListGroups(r.Context(), pathParam(r, "pid"))
	if err != nil {
		writeError(w, "list groups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// ImportGroups handles PUT /api/processes/{pid}/groups. Each group replaces
// the stored group with the same id together with its entries. The process
// is reloaded and a reload is broadcast to other clients.
//
//	@Summary		Import entry groups produced upstream
//	@Tags			checklist
//	@Accept			json
//	@Produce		json
//	@Param			pid		path		string				true	"Process id"
//	@Param			body	body		[]models.EntryGroup	true	"Groups"
//	@Success		200		{object}	EntryListResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/processes/{pid}/groups [put]
func (h *Handler) ImportGroups(w http.ResponseWriter, r *http.Request) {
	pid := pathParam(r, "pid")
	var groups []models.EntryGroup
	if !decodeJSON(w, r, &groups) {
		return
	}
	for i, g := range groups {
		if err := validateGroup(g); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("group %d: %v", i, err)))
			return
		}
	}
	for _, g := range groups {
		g.ProcessID = pid
		for i := range g.Entries {
			g.Entries[i].ProcessID = pid
			g.Entries[i].GroupID = g.ID
		}
		if err := h.Importer.UpsertGroup(r.Context(), g); err != nil {
			writeError(w, "import group", err)
			return
		}
	}
	if err := h.Checklist.Load(r.Context(), pid); err != nil {
		writeError(w, "reload entries", err)
		return
	}
	if h.Events != nil {
		h.Events.PublishCollectionChanged(pid, "", checklist.ReasonReload)
	}
	writeJSON(w, http.StatusOK, EntryListResponse{
		Entries: h.Checklist.Entries(pid),
		Stats:   h.Checklist.Stats(pid),
	})
}

// ListDecisions handles GET /api/processes/{pid}/decisions.
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.Catalog.ListDecisions(r.Context(), pathParam(r, "pid"))
	if err != nil {
		writeError(w, "list decisions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

// ImportDecisions handles PUT /api/processes/{pid}/decisions.
func (h *Handler) ImportDecisions(w http.ResponseWriter, r *http.Request) {
	pid := pathParam(r, "pid")
	var decisions []models.Decision
	if !decodeJSON(w, r, &decisions) {
		return
	}
	for i, d := range decisions {
		if err := validateDecision(d); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("decision %d: %v", i, err)))
			return
		}
	}
	for _, d := range decisions {
		d.ProcessID = pid
		if err := h.Importer.UpsertDecision(r.Context(), d); err != nil {
			writeError(w, "import decision", err)
			return
		}
	}
	if h.Events != nil {
		h.Events.PublishCollectionChanged(pid, "", checklist.ReasonReload)
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, id string) (models.LedgerEntry, error)

func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, op string, fn transitionFunc) {
	id := pathParam(r, "id")
	if _, err := h.entry(r.Context(), id); err != nil {
		writeError(w, op, err)
		return
	}
	e, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, EntryResponse{
		Entry: e,
		State: checklist.StateOf(e),
		Stats: h.Checklist.Stats(e.ProcessID),
	})
}

// AdvanceEntry handles POST /api/entries/{id}/advance.
//
//	@Summary		Move an entry one approval state forward
//	@Tags			checklist
//	@Produce		json
//	@Param			id	path		string	true	"Entry id"
//	@Success		200	{object}	EntryResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{id}/advance [post]
func (h *Handler) AdvanceEntry(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, "advance entry", h.Checklist.Advance)
}

// RegressEntry handles POST /api/entries/{id}/regress.
func (h *Handler) RegressEntry(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, "regress entry", h.Checklist.Regress)
}

// SetEntryCheck handles PUT /api/entries/{id}/checks/{role}.
//
//	@Summary		Write the preparer or reviewer check directly
//	@Tags			checklist
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Entry id"
//	@Param			role	path		string			true	"Check"	Enums(preparer, reviewer)
//	@Param			body	body		SetCheckRequest	true	"Value"
//	@Success		200		{object}	EntryResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{id}/checks/{role} [put]
func (h *Handler) SetEntryCheck(w http.ResponseWriter, r *http.Request) {
	role := models.CheckRole(pathParam(r, "role"))
	if !role.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody("role must be preparer or reviewer"))
		return
	}
	var req SetCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("value is required"))
		return
	}
	h.runTransition(w, r, "set check", func(ctx context.Context, id string) (models.LedgerEntry, error) {
		return h.Checklist.SetCheck(ctx, id, role, *req.Value)
	})
}

// EntryHighlights handles GET /api/entries/{id}/highlights.
//
//	@Summary		Resolve the highlights an entry cites
//	@Tags			xref
//	@Produce		json
//	@Param			id	path		string	true	"Entry id"
//	@Success		200	{object}	EntryHighlightsResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{id}/highlights [get]
func (h *Handler) EntryHighlights(w http.ResponseWriter, r *http.Request) {
	e, err := h.entry(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, "entry highlights", err)
		return
	}
	reg := h.Highlights.Registry()
	stale := xref.StaleEntryHighlightIDs(e, reg)
	if stale == nil {
		stale = []string{}
	}
	writeJSON(w, http.StatusOK, EntryHighlightsResponse{
		EntryID:    e.ID,
		Highlights: xref.ResolveEntryHighlights(e, reg),
		Stale:      stale,
	})
}

// EntryDecision handles GET /api/entries/{id}/decision. An entry whose
// reference matches no decision yields 404.
func (h *Handler) EntryDecision(w http.ResponseWriter, r *http.Request) {
	e, err := h.entry(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, "entry decision", err)
		return
	}
	decisions, err := h.Catalog.ListDecisions(r.Context(), e.ProcessID)
	if err != nil {
		writeError(w, "entry decision", err)
		return
	}
	d, ok := xref.ResolveLinkedDecision(e, decisions)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no linked decision"))
		return
	}
	writeJSON(w, http.StatusOK, EntryDecisionResponse{
		EntryID:  e.ID,
		Decision: d,
		Display:  xref.DisplayDecisionRef(e, decisions),
	})
}
