package checklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/metrics"
	"github.com/starford/verba/internal/models"
	"github.com/starford/verba/internal/notify"
)

// Store is the persistence collaborator of the checklist.
type Store interface {
	ListEntries(ctx context.Context, processID string) ([]models.LedgerEntry, error)
	SetEntryCheck(ctx context.Context, entryID string, role models.CheckRole, value bool, at *time.Time) error
	RecomputeProcessRollupStatus(ctx context.Context, processID string) (models.ProcessRollup, error)
}

// Broadcast reasons.
const (
	ReasonAdvance  = "advance"
	ReasonRegress  = "regress"
	ReasonSetCheck = "set-check"
	ReasonReload   = "reload"
)

// Service owns the in-memory entry collections of loaded processes.
type Service struct {
	store    Store
	pub      events.Publisher
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]models.LedgerEntry // by entry id
	order   map[string][]string           // process id -> entry ids
	rollups map[string]models.ProcessRollup

	closed atomic.Bool
}

// NewService creates a checklist service. pub and m may be nil.
func NewService(store Store, pub events.Publisher, notifier notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		pub:      pub,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]models.LedgerEntry),
		order:    make(map[string][]string),
		rollups:  make(map[string]models.ProcessRollup),
	}
}

// Close stops the service from applying persistence results that arrive later.
func (s *Service) Close() { s.closed.Store(true) }

// Load pulls the authoritative entries of processID from the store.
func (s *Service) Load(ctx context.Context, processID string) error {
	entries, err := s.store.ListEntries(ctx, processID)
	if err != nil {
		return fmt.Errorf("checklist: load %s: %w", processID, err)
	}
	if s.closed.Load() {
		return nil
	}
	s.Replace(processID, entries)
	return nil
}

// Replace swaps the collection of processID for entries.
func (s *Service) Replace(processID string, entries []models.LedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order[processID] {
		delete(s.entries, id)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		e.ProcessID = processID
		s.entries[e.ID] = e.Clone()
		ids = append(ids, e.ID)
	}
	s.order[processID] = ids
}

// Loaded reports whether the collection of processID is in memory.
func (s *Service) Loaded(processID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.order[processID]
	return ok
}

// Entries returns a copy of the collection of processID in load order.
func (s *Service) Entries(processID string) []models.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[processID]
	out := make([]models.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.entries[id].Clone())
	}
	return out
}

// Entry returns a copy of one entry.
func (s *Service) Entry(id string) (models.LedgerEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return models.LedgerEntry{}, false
	}
	return e.Clone(), true
}

// Stats recomputes the aggregate counts of processID.
func (s *Service) Stats(processID string) Stats {
	return ComputeStats(s.Entries(processID))
}

// Rollup returns the last rollup the store reported for processID.
func (s *Service) Rollup(processID string) (models.ProcessRollup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rollups[processID]
	return r, ok
}

// Advance moves an entry one state forward. Advancing an approved entry
// changes nothing and persists nothing.
func (s *Service) Advance(ctx context.Context, entryID string) (models.LedgerEntry, error) {
	return s.transition(ctx, entryID, ReasonAdvance, func(e models.LedgerEntry, now time.Time) (models.LedgerEntry, models.CheckRole, error) {
		out, role := Advance(e, now)
		return out, role, nil
	})
}

// Regress moves an entry one state back. Regressing a pending entry changes
// nothing and persists nothing.
func (s *Service) Regress(ctx context.Context, entryID string) (models.LedgerEntry, error) {
	return s.transition(ctx, entryID, ReasonRegress, func(e models.LedgerEntry, now time.Time) (models.LedgerEntry, models.CheckRole, error) {
		out, role := Regress(e, now)
		return out, role, nil
	})
}

// SetCheck writes one check directly. The write is always persisted so a
// retry after a failed call reaches the store.
func (s *Service) SetCheck(ctx context.Context, entryID string, role models.CheckRole, value bool) (models.LedgerEntry, error) {
	return s.transition(ctx, entryID, ReasonSetCheck, func(e models.LedgerEntry, now time.Time) (models.LedgerEntry, models.CheckRole, error) {
		out, err := SetCheck(e, role, value, now)
		if err != nil {
			return e, role, err
		}
		return out, role, nil
	})
}

type stepFunc func(e models.LedgerEntry, now time.Time) (models.LedgerEntry, models.CheckRole, error)

// transition runs the optimistic update, the entry persistence call, the
// rollup recompute and the broadcast, in that order.
func (s *Service) transition(ctx context.Context, entryID, reason string, step stepFunc) (models.LedgerEntry, error) {
	s.mu.Lock()
	cur, ok := s.entries[entryID]
	if !ok {
		s.mu.Unlock()
		return models.LedgerEntry{}, fmt.Errorf("entry %s: %w", entryID, apperr.ErrNotFound)
	}
	next, role, err := step(cur, s.now())
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, apperr.ErrInvariant) {
			s.logger.Warn("check write rejected",
				slog.String("entry", entryID),
				slog.String("role", string(role)),
				slog.String("state", string(StateOf(cur))),
			)
			s.metrics.InvariantRejected(string(role))
			s.metrics.Transition(reason, "rejected")
		}
		return cur.Clone(), err
	}
	if role == "" {
		s.mu.Unlock()
		s.metrics.Transition(reason, "noop")
		return cur.Clone(), nil
	}
	s.entries[entryID] = next
	s.mu.Unlock()

	value, at := CheckAt(next, role)
	if err := s.store.SetEntryCheck(ctx, entryID, role, value, at); err != nil {
		s.logger.Error("persist entry check failed",
			slog.String("entry", entryID),
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
		s.metrics.PersistenceFailed("checklist", "set_check")
		s.metrics.Transition(reason, "failed")
		s.notifier.Show(notify.KindError, "Não foi possível salvar a conferência do lançamento.")
		return next.Clone(), fmt.Errorf("checklist: persist %s: %w", entryID, err)
	}
	s.metrics.Transition(reason, "applied")

	rollup, err := s.store.RecomputeProcessRollupStatus(ctx, next.ProcessID)
	if err != nil {
		s.logger.Error("recompute rollup failed",
			slog.String("process", next.ProcessID),
			slog.String("error", err.Error()),
		)
		s.metrics.PersistenceFailed("checklist", "rollup")
		s.notifier.Show(notify.KindWarning, "Não foi possível atualizar o status do processo.")
	} else if !s.closed.Load() {
		s.mu.Lock()
		s.rollups[next.ProcessID] = rollup
		s.mu.Unlock()
	}

	if s.pub != nil {
		s.pub.Publish(events.Event{
			Type: events.TopicCollectionChanged,
			Data: events.CollectionChanged{ProcessID: next.ProcessID, EntryID: entryID, Reason: reason},
		})
	}
	return next.Clone(), nil
}

// Sync reloads processID when another writer announced a change. Events
// produced by this service for entries it already holds are ignored.
func (s *Service) Sync(ctx context.Context, ev events.Event) error {
	if ev.Type != events.TopicCollectionChanged {
		return nil
	}
	cc, err := events.Decode[events.CollectionChanged](ev)
	if err != nil {
		return fmt.Errorf("checklist: decode event: %w", err)
	}
	if !ev.Remote && cc.Reason != ReasonReload {
		return nil
	}
	if !s.Loaded(cc.ProcessID) {
		return nil
	}
	return s.Load(ctx, cc.ProcessID)
}

// Watch subscribes to collection changes on b and reloads affected processes
// until ctx is done.
func (s *Service) Watch(ctx context.Context, b *events.Broker) error {
	sub := b.Subscribe(events.TopicCollectionChanged)
	defer b.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := s.Sync(ctx, ev); err != nil {
				s.logger.Warn("checklist sync failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessIDs returns the processes with a loaded collection, sorted.
func (s *Service) ProcessIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.order))
	for id := range s.order {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
