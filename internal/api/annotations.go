package api

import (
	"net/http"

	"github.com/starford/verba/internal/models"
)

// ListAnnotations handles GET /api/documents/{doc}/annotations. With ?page=
// only the markers of that page are returned.
//
//	@Summary		List the annotation markers of a document
//	@Tags			annotations
//	@Produce		json
//	@Param			doc		path		string	true	"Document path"
//	@Param			page	query		int		false	"Page number"
//	@Success		200		{object}	AnnotationListResponse
//	@Security		BearerAuth
//	@Router			/documents/{doc}/annotations [get]
func (h *Handler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	doc := pathParam(r, "doc")
	if page := queryInt(r, "page"); page > 0 {
		writeJSON(w, http.StatusOK, AnnotationListResponse{Annotations: h.Board.ByPage(doc, page)})
		return
	}
	writeJSON(w, http.StatusOK, AnnotationListResponse{Annotations: h.Board.ByDocument(doc)})
}

// CreateAnnotation handles POST /api/documents/{doc}/annotations.
//
//	@Summary		Place an annotation marker
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			doc		path		string					true	"Document path"
//	@Param			body	body		CreateAnnotationRequest	true	"Annotation"
//	@Success		201		{object}	models.Annotation
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{doc}/annotations [post]
func (h *Handler) CreateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req CreateAnnotationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.Board.Create(r.Context(), models.Annotation{
		DocumentID: pathParam(r, "doc"),
		PageNumber: req.PageNumber,
		Position:   req.Position,
		Content:    req.Content,
		Color:      req.Color,
		Minimized:  req.Minimized,
		Connectors: req.Connectors,
	})
	if err != nil {
		writeError(w, "create annotation", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAnnotation handles PATCH /api/annotations/{id}. Absent fields are
// left untouched.
//
//	@Summary		Update position, content, color or minimized state
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Annotation id"
//	@Param			body	body		models.AnnotationPatch	true	"Patch"
//	@Success		200		{object}	models.Annotation
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/{id} [patch]
func (h *Handler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	var patch models.AnnotationPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	a, err := h.Board.Update(r.Context(), pathParam(r, "id"), patch)
	if err != nil {
		writeError(w, "update annotation", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAnnotation handles DELETE /api/annotations/{id}.
func (h *Handler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	if err := h.Board.Delete(r.Context(), pathParam(r, "id")); err != nil {
		writeError(w, "delete annotation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddConnector handles POST /api/annotations/{id}/connectors.
//
//	@Summary		Attach an arrow or highlight box to an annotation
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Annotation id"
//	@Param			body	body		AddConnectorRequest	true	"Connector"
//	@Success		201		{object}	models.Connector
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/{id}/connectors [post]
func (h *Handler) AddConnector(w http.ResponseWriter, r *http.Request) {
	var req AddConnectorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Board.Connect(r.Context(), pathParam(r, "id"), req.Type, req.Target, req.HighlightID)
	if err != nil {
		writeError(w, "add connector", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
