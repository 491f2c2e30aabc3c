package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 200 << 20 // 200 MB

// pathParam returns a URL parameter, decoding escaped slashes so nested
// document paths (vol1%2Fsentenca.pdf) fit in one segment.
func pathParam(r *http.Request, name string) string {
	raw := strings.TrimPrefix(chi.URLParam(r, name), "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List known source documents
//	@Tags			documents
//	@Produce		json
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Catalog.ListDocuments(r.Context())
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// ServeDocument handles GET /api/documents/{doc}/file.
func (h *Handler) ServeDocument(w http.ResponseWriter, r *http.Request) {
	doc := pathParam(r, "doc")
	meta, err := h.Documents.Stat(doc)
	if err != nil {
		writeError(w, "stat document", err)
		return
	}
	f, err := h.Documents.Open(doc)
	if err != nil {
		writeError(w, "open document", err)
		return
	}
	defer f.Close()
	w.Header().Set("ETag", `"`+meta.Checksum+`"`)
	http.ServeContent(w, r, path.Base(doc), meta.UpdatedAt, f)
}

// UploadDocument handles PUT /api/documents/{doc}/file. The raw body becomes
// the document content. Replacing an existing document resets its
// highlights.
//
//	@Summary		Upload or replace a source document
//	@Tags			documents
//	@Accept			application/pdf
//	@Produce		json
//	@Param			doc	path		string	true	"Document path"
//	@Success		200	{object}	DocumentUploadResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{doc}/file [put]
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	doc := pathParam(r, "doc")
	if !h.Documents.IsDocument(doc) {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported document type"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := h.Documents.Write(doc, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("document too large"))
			return
		}
		writeError(w, "write document", err)
		return
	}
	if h.DocumentSync != nil {
		if err := h.DocumentSync.Apply(r.Context(), doc); err != nil {
			slog.Warn("document sync after upload failed", slog.String("path", doc), slog.String("error", err.Error()))
		}
	}
	meta, err := h.Documents.Stat(doc)
	if err != nil {
		writeError(w, "stat document", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentUploadResponse{Document: meta})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across annotation content
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit := queryInt(r, "limit")
	results, err := h.Catalog.SearchAnnotations(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
