package models

import "time"

// ConnectorType is the visual kind of a connector.
type ConnectorType string

const (
	ConnectorArrow        ConnectorType = "arrow"
	ConnectorHighlightBox ConnectorType = "highlight-box"
)

// Valid reports whether t is a known connector type.
func (t ConnectorType) Valid() bool {
	return t == ConnectorArrow || t == ConnectorHighlightBox
}

// Geometry is the target of a connector: a point for arrows, a region for boxes.
type Geometry struct {
	Point *Point `json:"point,omitempty"`
	Rect  *Rect  `json:"rect,omitempty"`
}

// Connector links an annotation to document geometry. HighlightID is a weak
// reference: the highlight may disappear and the connector becomes inert.
type Connector struct {
	ID          string        `json:"id"`
	Type        ConnectorType `json:"type"`
	Target      Geometry      `json:"target"`
	HighlightID string        `json:"highlight_id,omitempty"`
}

// Annotation is a draggable comment marker placed on a page.
type Annotation struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"document_id"`
	PageNumber int         `json:"page_number"`
	Position   Point       `json:"position"`
	Content    string      `json:"content"`
	Color      string      `json:"color"`
	Connectors []Connector `json:"connectors"`
	Minimized  bool        `json:"minimized"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// AnnotationPatch carries a partial annotation update; nil fields are left untouched.
type AnnotationPatch struct {
	Position  *Point  `json:"position,omitempty"`
	Content   *string `json:"content,omitempty"`
	Color     *string `json:"color,omitempty"`
	Minimized *bool   `json:"minimized,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p AnnotationPatch) Empty() bool {
	return p.Position == nil && p.Content == nil && p.Color == nil && p.Minimized == nil
}
