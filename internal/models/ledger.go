package models

import "time"

// CheckRole names one of the two approval checks on a ledger entry.
type CheckRole string

const (
	CheckPreparer CheckRole = "preparer"
	CheckReviewer CheckRole = "reviewer"
)

// Valid reports whether r is a known check role.
func (r CheckRole) Valid() bool {
	return r == CheckPreparer || r == CheckReviewer
}

// LedgerEntry is one decision-outcome record for a claim ("lançamento").
// CheckReviewer implies CheckPreparer.
type LedgerEntry struct {
	ID                string     `json:"id"`
	GroupID           string     `json:"group_id"`
	ProcessID         string     `json:"process_id"`
	LinkedDecisionRef string     `json:"linked_decision_ref"`
	SituationLabel    string     `json:"situation_label"`
	PageNumber        *int       `json:"page_number,omitempty"`
	HighlightIDs      []string   `json:"highlight_ids"`
	CheckPreparer     bool       `json:"check_preparer"`
	CheckPreparerAt   *time.Time `json:"check_preparer_at,omitempty"`
	CheckReviewer     bool       `json:"check_reviewer"`
	CheckReviewerAt   *time.Time `json:"check_reviewer_at,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e LedgerEntry) Clone() LedgerEntry {
	out := e
	if e.HighlightIDs != nil {
		out.HighlightIDs = append([]string(nil), e.HighlightIDs...)
	}
	if e.PageNumber != nil {
		p := *e.PageNumber
		out.PageNumber = &p
	}
	if e.CheckPreparerAt != nil {
		t := *e.CheckPreparerAt
		out.CheckPreparerAt = &t
	}
	if e.CheckReviewerAt != nil {
		t := *e.CheckReviewerAt
		out.CheckReviewerAt = &t
	}
	return out
}

// EntryGroup is a named claim type ("verba") owning its entries.
type EntryGroup struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	ProcessID string        `json:"process_id"`
	Entries   []LedgerEntry `json:"entries"`
}

// Decision is a structured legal decision referenced by ledger entries.
type Decision struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	ProcessID  string `json:"process_id"`
	PageNumber *int   `json:"page_number,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// Rollup statuses.
const (
	RollupNotStarted = "not-started"
	RollupInProgress = "in-progress"
	RollupComplete   = "complete"
)

// ProcessRollup is the persisted aggregate checklist status of a process.
type ProcessRollup struct {
	ProcessID       string    `json:"process_id"`
	Status          string    `json:"status"`
	Total           int       `json:"total"`
	Pending         int       `json:"pending"`
	Prepared        int       `json:"prepared"`
	Approved        int       `json:"approved"`
	PercentApproved int       `json:"percent_approved"`
	UpdatedAt       time.Time `json:"updated_at"`
}
