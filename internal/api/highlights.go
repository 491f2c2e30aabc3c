package api

import (
	"net/http"

	"github.com/starford/verba/internal/highlight"
)

// ListHighlights handles GET /api/documents/{doc}/highlights.
//
//	@Summary		List the highlights of a document
//	@Tags			highlights
//	@Produce		json
//	@Param			doc	path		string	true	"Document path"
//	@Success		200	{object}	HighlightListResponse
//	@Security		BearerAuth
//	@Router			/documents/{doc}/highlights [get]
func (h *Handler) ListHighlights(w http.ResponseWriter, r *http.Request) {
	doc := pathParam(r, "doc")
	writeJSON(w, http.StatusOK, HighlightListResponse{Highlights: h.Highlights.Registry().ByDocument(doc)})
}

// PageHighlights handles GET /api/documents/{doc}/pages/{page}/highlights.
func (h *Handler) PageHighlights(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	doc := pathParam(r, "doc")
	writeJSON(w, http.StatusOK, HighlightListResponse{Highlights: h.Highlights.Registry().ByDocumentPage(doc, page)})
}

// CreateHighlights handles POST /api/documents/{doc}/highlights.
//
//	@Summary		Commit a selection as highlights
//	@Tags			highlights
//	@Accept			json
//	@Produce		json
//	@Param			doc		path		string					true	"Document path"
//	@Param			body	body		CreateHighlightsRequest	true	"Selection"
//	@Success		201		{object}	HighlightListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{doc}/highlights [post]
func (h *Handler) CreateHighlights(w http.ResponseWriter, r *http.Request) {
	var req CreateHighlightsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := h.Highlights.Commit(r.Context(), highlight.Draft{
		DocumentID: pathParam(r, "doc"),
		Anchor:     req.Anchor,
		Text:       req.Text,
		Rects:      req.Rects,
		Color:      req.Color,
		Intent:     req.Intent,
	})
	if err != nil {
		writeError(w, "create highlights", err)
		return
	}
	writeJSON(w, http.StatusCreated, HighlightListResponse{Highlights: created})
}

// DeleteHighlight handles DELETE /api/highlights/{id}. Entries and
// connectors that reference the highlight are left as they are.
func (h *Handler) DeleteHighlight(w http.ResponseWriter, r *http.Request) {
	if err := h.Highlights.Remove(r.Context(), pathParam(r, "id")); err != nil {
		writeError(w, "delete highlight", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
