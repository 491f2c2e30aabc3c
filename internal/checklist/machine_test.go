package checklist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/models"
)

var t0 = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func pending() models.LedgerEntry {
	return models.LedgerEntry{ID: "e1", ProcessID: "p1", HighlightIDs: []string{"h1"}}
}

func prepared() models.LedgerEntry {
	at := t0
	e := pending()
	e.CheckPreparer, e.CheckPreparerAt = true, &at
	return e
}

func approved() models.LedgerEntry {
	at := t0.Add(time.Hour)
	e := prepared()
	e.CheckReviewer, e.CheckReviewerAt = true, &at
	return e
}

func invariantHolds(t *testing.T, e models.LedgerEntry) {
	t.Helper()
	if e.CheckReviewer {
		assert.True(t, e.CheckPreparer, "reviewer set without preparer: %+v", e)
	}
}

func TestScenario(t *testing.T) {
	e := pending()
	assert.Equal(t, StatePending, StateOf(e))

	e, role := Advance(e, t0)
	assert.Equal(t, models.CheckPreparer, role)
	assert.Equal(t, StatePrepared, StateOf(e))
	require.NotNil(t, e.CheckPreparerAt)
	assert.Equal(t, t0, *e.CheckPreparerAt)

	t1 := t0.Add(time.Minute)
	e, role = Advance(e, t1)
	assert.Equal(t, models.CheckReviewer, role)
	assert.Equal(t, StateApproved, StateOf(e))
	require.NotNil(t, e.CheckReviewerAt)
	assert.Equal(t, t1, *e.CheckReviewerAt)

	before := e.Clone()
	e, role = Advance(e, t1.Add(time.Minute))
	assert.Empty(t, role)
	assert.Equal(t, before, e)

	e, role = Regress(e, t1)
	assert.Equal(t, models.CheckReviewer, role)
	assert.Equal(t, StatePrepared, StateOf(e))
	assert.Nil(t, e.CheckReviewerAt)
	assert.NotNil(t, e.CheckPreparerAt)

	e, role = Regress(e, t1)
	assert.Equal(t, models.CheckPreparer, role)
	assert.Equal(t, StatePending, StateOf(e))
	assert.Nil(t, e.CheckPreparerAt)

	e, role = Regress(e, t1)
	assert.Empty(t, role)
	assert.Equal(t, pending(), e)
}

func TestAdvanceRegressRoundTrip(t *testing.T) {
	for name, start := range map[string]models.LedgerEntry{
		"pending":  pending(),
		"prepared": prepared(),
	} {
		t.Run(name, func(t *testing.T) {
			next, _ := Advance(start, t0.Add(time.Hour))
			back, _ := Regress(next, t0.Add(2*time.Hour))
			assert.Equal(t, start, back)
		})
	}
}

func TestInvariantAcrossSequences(t *testing.T) {
	ops := []string{"a", "a", "r", "a", "a", "a", "r", "r", "r", "a", "r", "a", "a"}
	starts := []models.LedgerEntry{pending(), prepared(), approved()}
	for _, e := range starts {
		for i, op := range ops {
			now := t0.Add(time.Duration(i) * time.Minute)
			if op == "a" {
				e, _ = Advance(e, now)
			} else {
				e, _ = Regress(e, now)
			}
			invariantHolds(t, e)

			var err error
			e, err = SetCheck(e, models.CheckReviewer, true, now)
			if err != nil {
				assert.ErrorIs(t, err, ErrReviewerWithoutPreparer)
			}
			invariantHolds(t, e)

			e, err = SetCheck(e, models.CheckPreparer, false, now)
			if err != nil {
				assert.ErrorIs(t, err, apperr.ErrInvariant)
			}
			invariantHolds(t, e)
		}
	}
}

func TestAdvanceRepairsInconsistentEntry(t *testing.T) {
	at := t0
	e := pending()
	e.CheckReviewer, e.CheckReviewerAt = true, &at
	assert.Equal(t, StatePending, StateOf(e))

	out, role := Advance(e, t0)
	assert.Equal(t, models.CheckPreparer, role)
	assert.Equal(t, StatePrepared, StateOf(out))
	assert.False(t, out.CheckReviewer)
	assert.Nil(t, out.CheckReviewerAt)
}

func TestSetCheck(t *testing.T) {
	t.Run("reviewer without preparer is rejected", func(t *testing.T) {
		e := pending()
		out, err := SetCheck(e, models.CheckReviewer, true, t0)
		require.ErrorIs(t, err, ErrReviewerWithoutPreparer)
		assert.Equal(t, e, out)
	})

	t.Run("clearing preparer under reviewer is rejected", func(t *testing.T) {
		e := approved()
		out, err := SetCheck(e, models.CheckPreparer, false, t0)
		require.ErrorIs(t, err, apperr.ErrInvariant)
		assert.Equal(t, e, out)
	})

	t.Run("setting an already set check keeps its timestamp", func(t *testing.T) {
		e := prepared()
		out, err := SetCheck(e, models.CheckPreparer, true, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, t0, *out.CheckPreparerAt)
	})

	t.Run("reviewer on prepared entry", func(t *testing.T) {
		out, err := SetCheck(prepared(), models.CheckReviewer, true, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, StateApproved, StateOf(out))
	})

	t.Run("clearing reviewer", func(t *testing.T) {
		out, err := SetCheck(approved(), models.CheckReviewer, false, t0)
		require.NoError(t, err)
		assert.Equal(t, StatePrepared, StateOf(out))
		assert.Nil(t, out.CheckReviewerAt)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := SetCheck(pending(), "auditor", true, t0)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})
}

func TestAdvanceDoesNotShareState(t *testing.T) {
	e := prepared()
	out, _ := Advance(e, t0.Add(time.Hour))
	out.HighlightIDs[0] = "changed"
	*out.CheckPreparerAt = t0.Add(24 * time.Hour)

	assert.Equal(t, "h1", e.HighlightIDs[0])
	assert.Equal(t, t0, *e.CheckPreparerAt)
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name    string
		entries []models.LedgerEntry
		want    Stats
	}{
		{"empty", nil, Stats{}},
		{"all pending", []models.LedgerEntry{pending(), pending()}, Stats{Total: 2, Pending: 2}},
		{"one of three approved", []models.LedgerEntry{pending(), prepared(), approved()},
			Stats{Total: 3, Pending: 1, Prepared: 1, Approved: 1, PercentApproved: 33}},
		{"two of three approved rounds up", []models.LedgerEntry{approved(), prepared(), approved()},
			Stats{Total: 3, Prepared: 1, Approved: 2, PercentApproved: 67}},
		{"half rounds away from zero", []models.LedgerEntry{approved(), pending(), pending(), pending(), pending(), pending(), pending(), pending()},
			Stats{Total: 8, Pending: 7, Approved: 1, PercentApproved: 13}},
		{"all approved", []models.LedgerEntry{approved()}, Stats{Total: 1, Approved: 1, PercentApproved: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStats(tt.entries)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.Total, got.Pending+got.Prepared+got.Approved)
		})
	}
}

func TestRollupStatus(t *testing.T) {
	assert.Equal(t, models.RollupNotStarted, RollupStatus(Stats{}))
	assert.Equal(t, models.RollupNotStarted, RollupStatus(Stats{Total: 2, Pending: 2}))
	assert.Equal(t, models.RollupInProgress, RollupStatus(Stats{Total: 2, Pending: 1, Prepared: 1}))
	assert.Equal(t, models.RollupInProgress, RollupStatus(Stats{Total: 2, Prepared: 1, Approved: 1}))
	assert.Equal(t, models.RollupComplete, RollupStatus(Stats{Total: 2, Approved: 2}))

	r := Rollup("p1", []models.LedgerEntry{approved(), pending()}, t0)
	assert.Equal(t, "p1", r.ProcessID)
	assert.Equal(t, models.RollupInProgress, r.Status)
	assert.Equal(t, 50, r.PercentApproved)
	assert.Equal(t, t0, r.UpdatedAt)
}
