package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/checklist"
	"github.com/starford/verba/internal/models"
)

const entryColumns = `id, group_id, process_id, linked_decision_ref, situation_label, page_number,
	highlight_ids, check_preparer, check_preparer_at, check_reviewer, check_reviewer_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (models.LedgerEntry, error) {
	var (
		e            models.LedgerEntry
		page         sql.NullInt64
		highlightIDs string
		preparerAt   sql.NullTime
		reviewerAt   sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.GroupID, &e.ProcessID, &e.LinkedDecisionRef, &e.SituationLabel, &page,
		&highlightIDs, &e.CheckPreparer, &preparerAt, &e.CheckReviewer, &reviewerAt); err != nil {
		return e, err
	}
	if page.Valid {
		p := int(page.Int64)
		e.PageNumber = &p
	}
	if err := json.Unmarshal([]byte(highlightIDs), &e.HighlightIDs); err != nil {
		return e, fmt.Errorf("store: decode highlight ids of %s: %w", e.ID, err)
	}
	if preparerAt.Valid {
		t := preparerAt.Time
		e.CheckPreparerAt = &t
	}
	if reviewerAt.Valid {
		t := reviewerAt.Time
		e.CheckReviewerAt = &t
	}
	return e, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// UpsertGroup writes a group and replaces its entries. Entries inherit the
// group's process id. An entry with the reviewer check but not the preparer
// check is rejected.
func (db *DB) UpsertGroup(ctx context.Context, g models.EntryGroup) error {
	for _, e := range g.Entries {
		if e.CheckReviewer && !e.CheckPreparer {
			return fmt.Errorf("store: entry %s: %w", e.ID, checklist.ErrReviewerWithoutPreparer)
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entry_groups (id, label, process_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label      = excluded.label,
			process_id = excluded.process_id
	`, g.ID, g.Label, g.ProcessID)
	if err != nil {
		return fmt.Errorf("store: upsert group: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE group_id = ?`, g.ID); err != nil {
		return fmt.Errorf("store: clear group entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare entry insert: %w", err)
	}
	defer stmt.Close()
	for i, e := range g.Entries {
		ids := e.HighlightIDs
		if ids == nil {
			ids = []string{}
		}
		idsJSON, _ := json.Marshal(ids)
		_, err := stmt.ExecContext(ctx, e.ID, g.ID, g.ProcessID, e.LinkedDecisionRef, e.SituationLabel,
			nullInt(e.PageNumber), string(idsJSON), e.CheckPreparer, nullTime(e.CheckPreparerAt),
			e.CheckReviewer, nullTime(e.CheckReviewerAt), i)
		if err != nil {
			if isConstraint(err) {
				return fmt.Errorf("store: entry %s: %w", e.ID, apperr.ErrConflict)
			}
			return fmt.Errorf("store: insert entry: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteGroup removes a group and, by cascade, its entries.
func (db *DB) DeleteGroup(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM entry_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete group: %w", err)
	}
	return rowsAffected(res, "group", id)
}

// ListGroups returns the groups of processID with their entries.
func (db *DB) ListGroups(ctx context.Context, processID string) ([]models.EntryGroup, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, label, process_id FROM entry_groups WHERE process_id = ? ORDER BY label, id
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("store: list groups: %w", err)
	}
	groups := make([]models.EntryGroup, 0)
	index := make(map[string]int)
	for rows.Next() {
		var g models.EntryGroup
		if err := rows.Scan(&g.ID, &g.Label, &g.ProcessID); err != nil {
			rows.Close()
			return nil, err
		}
		g.Entries = []models.LedgerEntry{}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries, err := db.ListEntries(ctx, processID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if i, ok := index[e.GroupID]; ok {
			groups[i].Entries = append(groups[i].Entries, e)
		}
	}
	return groups, nil
}

// ListEntries returns every entry of processID, grouped and in group order.
func (db *DB) ListEntries(ctx context.Context, processID string) ([]models.LedgerEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE process_id = ?
		ORDER BY group_id, seq, id
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("store: list entries: %w", err)
	}
	defer rows.Close()

	out := make([]models.LedgerEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntry returns one entry.
func (db *DB) GetEntry(ctx context.Context, id string) (models.LedgerEntry, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("store: entry %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return e, fmt.Errorf("store: get entry: %w", err)
	}
	return e, nil
}

// SetEntryCheck writes one check of an entry. The reviewer check may only be
// set while the preparer check is set, and the preparer check may only be
// cleared while the reviewer check is clear. A set check without a timestamp
// is stamped now; a cleared check loses its timestamp.
func (db *DB) SetEntryCheck(ctx context.Context, entryID string, role models.CheckRole, value bool, at *time.Time) error {
	if !role.Valid() {
		return fmt.Errorf("store: check role %q: %w", role, apperr.ErrInvalidInput)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var preparer, reviewer bool
	err = tx.QueryRowContext(ctx, `
		SELECT check_preparer, check_reviewer FROM ledger_entries WHERE id = ?
	`, entryID).Scan(&preparer, &reviewer)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: entry %s: %w", entryID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store: read entry checks: %w", err)
	}

	if role == models.CheckReviewer && value && !preparer {
		return fmt.Errorf("store: entry %s: %w", entryID, checklist.ErrReviewerWithoutPreparer)
	}
	if role == models.CheckPreparer && !value && reviewer {
		return fmt.Errorf("store: entry %s: %w", entryID, checklist.ErrReviewerWithoutPreparer)
	}

	var stamp any
	if value {
		t := time.Now()
		if at != nil {
			t = *at
		}
		stamp = t.UTC()
	}

	query := `UPDATE ledger_entries SET check_preparer = ?, check_preparer_at = ? WHERE id = ?`
	if role == models.CheckReviewer {
		query = `UPDATE ledger_entries SET check_reviewer = ?, check_reviewer_at = ? WHERE id = ?`
	}
	if _, err := tx.ExecContext(ctx, query, value, stamp, entryID); err != nil {
		if isConstraint(err) {
			return fmt.Errorf("store: entry %s: %w", entryID, checklist.ErrReviewerWithoutPreparer)
		}
		return fmt.Errorf("store: set entry check: %w", err)
	}
	return tx.Commit()
}

// RecomputeProcessRollupStatus derives the rollup of processID from its
// stored entries and persists it.
func (db *DB) RecomputeProcessRollupStatus(ctx context.Context, processID string) (models.ProcessRollup, error) {
	entries, err := db.ListEntries(ctx, processID)
	if err != nil {
		return models.ProcessRollup{}, err
	}
	r := checklist.Rollup(processID, entries, time.Now().UTC())
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO process_rollups (process_id, status, total, pending, prepared, approved, percent_approved, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(process_id) DO UPDATE SET
			status           = excluded.status,
			total            = excluded.total,
			pending          = excluded.pending,
			prepared         = excluded.prepared,
			approved         = excluded.approved,
			percent_approved = excluded.percent_approved,
			updated_at       = excluded.updated_at
	`, r.ProcessID, r.Status, r.Total, r.Pending, r.Prepared, r.Approved, r.PercentApproved, r.UpdatedAt)
	if err != nil {
		return r, fmt.Errorf("store: upsert rollup: %w", err)
	}
	return r, nil
}

// GetRollup returns the last persisted rollup of processID.
func (db *DB) GetRollup(ctx context.Context, processID string) (models.ProcessRollup, error) {
	var r models.ProcessRollup
	err := db.conn.QueryRowContext(ctx, `
		SELECT process_id, status, total, pending, prepared, approved, percent_approved, updated_at
		FROM process_rollups WHERE process_id = ?
	`, processID).Scan(&r.ProcessID, &r.Status, &r.Total, &r.Pending, &r.Prepared, &r.Approved, &r.PercentApproved, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("store: rollup %s: %w", processID, apperr.ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("store: get rollup: %w", err)
	}
	return r, nil
}

// UpsertDecision writes a decision.
func (db *DB) UpsertDecision(ctx context.Context, d models.Decision) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO decisions (id, identifier, process_id, page_number, kind, summary)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			identifier  = excluded.identifier,
			process_id  = excluded.process_id,
			page_number = excluded.page_number,
			kind        = excluded.kind,
			summary     = excluded.summary
	`, d.ID, d.Identifier, d.ProcessID, nullInt(d.PageNumber), d.Kind, d.Summary)
	if err != nil {
		return fmt.Errorf("store: upsert decision: %w", err)
	}
	return nil
}

// ListDecisions returns the decisions of processID ordered by identifier.
func (db *DB) ListDecisions(ctx context.Context, processID string) ([]models.Decision, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, identifier, process_id, page_number, kind, summary
		FROM decisions WHERE process_id = ? ORDER BY identifier, id
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("store: list decisions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Decision, 0)
	for rows.Next() {
		var (
			d    models.Decision
			page sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &d.Identifier, &d.ProcessID, &page, &d.Kind, &d.Summary); err != nil {
			return nil, err
		}
		if page.Valid {
			p := int(page.Int64)
			d.PageNumber = &p
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
