// Package checklist implements the two-stage approval of ledger entries:
// a preparer check followed by a reviewer check.
//
// The functions in this file are pure. Service adds the optimistic update,
// persistence, rollup and broadcast sequence on top of them.
package checklist

import (
	"fmt"
	"math"
	"time"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/models"
)

// State is the approval state of a single entry.
type State string

const (
	StatePending  State = "pending"
	StatePrepared State = "prepared"
	StateApproved State = "approved"
)

// ErrReviewerWithoutPreparer rejects a write that would leave the reviewer
// check set while the preparer check is clear.
var ErrReviewerWithoutPreparer = fmt.Errorf("reviewer check requires the preparer check: %w", apperr.ErrInvariant)

// StateOf derives the state of e. An entry carrying the reviewer check
// without the preparer check is inconsistent data and counts as pending.
func StateOf(e models.LedgerEntry) State {
	switch {
	case e.CheckPreparer && e.CheckReviewer:
		return StateApproved
	case e.CheckPreparer:
		return StatePrepared
	default:
		return StatePending
	}
}

// Advance moves e one state forward. The returned role is the check that
// changed; it is empty when e was already approved.
func Advance(e models.LedgerEntry, now time.Time) (models.LedgerEntry, models.CheckRole) {
	out := e.Clone()
	switch StateOf(e) {
	case StatePending:
		out.CheckPreparer = true
		out.CheckPreparerAt = &now
		out.CheckReviewer = false
		out.CheckReviewerAt = nil
		return out, models.CheckPreparer
	case StatePrepared:
		out.CheckReviewer = true
		out.CheckReviewerAt = &now
		return out, models.CheckReviewer
	default:
		return out, ""
	}
}

// Regress moves e one state back. The returned role is the check that was
// cleared; it is empty when e was already pending.
func Regress(e models.LedgerEntry, _ time.Time) (models.LedgerEntry, models.CheckRole) {
	out := e.Clone()
	switch StateOf(e) {
	case StateApproved:
		out.CheckReviewer = false
		out.CheckReviewerAt = nil
		return out, models.CheckReviewer
	case StatePrepared:
		out.CheckPreparer = false
		out.CheckPreparerAt = nil
		return out, models.CheckPreparer
	default:
		return out, ""
	}
}

// SetCheck sets one check directly. Setting a check that is already set keeps
// its original timestamp. Writes that would break the reviewer/preparer
// invariant return ErrReviewerWithoutPreparer and leave e unchanged.
func SetCheck(e models.LedgerEntry, role models.CheckRole, value bool, now time.Time) (models.LedgerEntry, error) {
	if !role.Valid() {
		return e, fmt.Errorf("check role %q: %w", role, apperr.ErrInvalidInput)
	}
	out := e.Clone()
	switch role {
	case models.CheckPreparer:
		if !value && e.CheckReviewer {
			return e, ErrReviewerWithoutPreparer
		}
		if value && !e.CheckPreparer {
			out.CheckPreparerAt = &now
		}
		if !value {
			out.CheckPreparerAt = nil
		}
		out.CheckPreparer = value
	case models.CheckReviewer:
		if value && !e.CheckPreparer {
			return e, ErrReviewerWithoutPreparer
		}
		if value && !e.CheckReviewer {
			out.CheckReviewerAt = &now
		}
		if !value {
			out.CheckReviewerAt = nil
		}
		out.CheckReviewer = value
	}
	return out, nil
}

// CheckAt returns the value and timestamp of one check of e.
func CheckAt(e models.LedgerEntry, role models.CheckRole) (bool, *time.Time) {
	if role == models.CheckReviewer {
		return e.CheckReviewer, e.CheckReviewerAt
	}
	return e.CheckPreparer, e.CheckPreparerAt
}

// Stats are the aggregate approval counts of an entry collection.
type Stats struct {
	Total           int `json:"total"`
	Pending         int `json:"pending"`
	Prepared        int `json:"prepared"`
	Approved        int `json:"approved"`
	PercentApproved int `json:"percent_approved"`
}

// ComputeStats derives the aggregate counts from entries. It is always
// recomputed from the full collection.
func ComputeStats(entries []models.LedgerEntry) Stats {
	var s Stats
	for _, e := range entries {
		switch StateOf(e) {
		case StateApproved:
			s.Approved++
		case StatePrepared:
			s.Prepared++
		default:
			s.Pending++
		}
	}
	s.Total = len(entries)
	if s.Total > 0 {
		s.PercentApproved = int(math.Round(float64(s.Approved) / float64(s.Total) * 100))
	}
	return s
}

// RollupStatus maps aggregate counts to a process rollup status.
func RollupStatus(s Stats) string {
	switch {
	case s.Total > 0 && s.Approved == s.Total:
		return models.RollupComplete
	case s.Approved == 0 && s.Prepared == 0:
		return models.RollupNotStarted
	default:
		return models.RollupInProgress
	}
}

// Rollup builds the process rollup for entries.
func Rollup(processID string, entries []models.LedgerEntry, now time.Time) models.ProcessRollup {
	s := ComputeStats(entries)
	return models.ProcessRollup{
		ProcessID:       processID,
		Status:          RollupStatus(s),
		Total:           s.Total,
		Pending:         s.Pending,
		Prepared:        s.Prepared,
		Approved:        s.Approved,
		PercentApproved: s.PercentApproved,
		UpdatedAt:       now,
	}
}
