package models

import "time"

// Highlight intents.
const (
	IntentNote     = "note"
	IntentEvidence = "evidence"
	IntentDecision = "decision"
	IntentEntry    = "entry"
)

// Highlight is a page-anchored text-span marker. ID is immutable for the
// highlight's lifetime; geometry may be recomputed.
type Highlight struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	PageNumber int       `json:"page_number"`
	Rects      []Rect    `json:"rects"`
	Color      string    `json:"color"`
	Intent     string    `json:"intent"`
	Text       string    `json:"text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
