package api

import (
	"github.com/starford/verba/internal/anchor"
	"github.com/starford/verba/internal/annotation"
	"github.com/starford/verba/internal/checklist"
	"github.com/starford/verba/internal/models"
	"github.com/starford/verba/internal/store"
)

// CreateHighlightsRequest is a committed selection. Rects are keyed by page
// number; one highlight is created per page.
type CreateHighlightsRequest struct {
	Anchor *anchor.Anchor        `json:"anchor,omitempty"`
	Text   string                `json:"text" example:"horas extras habituais"`
	Rects  map[int][]models.Rect `json:"rects" validate:"required"`
	Color  string                `json:"color" example:"yellow"`
	Intent string                `json:"intent" example:"evidence"`
}

// HighlightListResponse wraps highlight listings.
type HighlightListResponse struct {
	Highlights []models.Highlight `json:"highlights" validate:"required"`
}

// CreateAnnotationRequest is the request body for placing a marker.
type CreateAnnotationRequest struct {
	PageNumber int                `json:"page_number" example:"3" validate:"required"`
	Position   models.Point       `json:"position"`
	Content    string             `json:"content" example:"ver fl. 12"`
	Color      string             `json:"color" example:"yellow"`
	Minimized  bool               `json:"minimized"`
	Connectors []models.Connector `json:"connectors,omitempty"`
}

// AnnotationListResponse wraps the markers of one document.
type AnnotationListResponse struct {
	Annotations []annotation.Marker `json:"annotations" validate:"required"`
}

// AddConnectorRequest is the request body for attaching a connector.
type AddConnectorRequest struct {
	Type        models.ConnectorType `json:"type" example:"arrow" validate:"required"`
	Target      models.Geometry      `json:"target"`
	HighlightID string               `json:"highlight_id,omitempty"`
}

// SetCheckRequest is the request body for writing one check.
type SetCheckRequest struct {
	Value *bool `json:"value" validate:"required"`
}

// EntryResponse is returned after a checklist transition.
type EntryResponse struct {
	Entry models.LedgerEntry `json:"entry"`
	State checklist.State    `json:"state" example:"prepared"`
	Stats checklist.Stats    `json:"stats"`
}

// EntryListResponse wraps the entries of a process.
type EntryListResponse struct {
	Entries []models.LedgerEntry `json:"entries" validate:"required"`
	Stats   checklist.Stats      `json:"stats"`
}

// EntryHighlightsResponse lists the resolved highlights of an entry and the
// ids that no longer resolve.
type EntryHighlightsResponse struct {
	EntryID    string             `json:"entry_id"`
	Highlights []models.Highlight `json:"highlights" validate:"required"`
	Stale      []string           `json:"stale" validate:"required"`
}

// EntryDecisionResponse is the decision linked to an entry.
type EntryDecisionResponse struct {
	EntryID  string          `json:"entry_id"`
	Decision models.Decision `json:"decision"`
	Display  string          `json:"display" example:"DEC-001"`
}

// SearchResponse wraps annotation search results.
type SearchResponse struct {
	Results []store.AnnotationHit `json:"results" validate:"required"`
}

// DocumentUploadResponse is returned after a document upload.
type DocumentUploadResponse struct {
	Document models.DocumentMetadata `json:"document"`
}
