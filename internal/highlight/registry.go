// Package highlight keeps the live set of highlighted spans per page.
package highlight

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/models"
)

// Lookup is the read side of the registry used by resolvers.
type Lookup interface {
	Lookup(id string) (models.Highlight, bool)
	CurrentIDs() map[string]struct{}
}

// Registry is the in-memory set of highlights. Ids are unique and never
// reused; removal does not cascade to entities referencing the id.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]models.Highlight
	retired map[string]struct{}
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]models.Highlight),
		retired: make(map[string]struct{}),
		now:     time.Now,
	}
}

var _ Lookup = (*Registry)(nil)

// Add stores h and returns its id. A fresh id is generated when h.ID is empty;
// an id that is live or was used before is rejected.
func (r *Registry) Add(h models.Highlight) (string, error) {
	if h.PageNumber < 1 {
		return "", fmt.Errorf("highlight: page number %d: %w", h.PageNumber, apperr.ErrInvalidInput)
	}
	if len(h.Rects) == 0 {
		return "", fmt.Errorf("highlight: no geometry: %w", apperr.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if _, ok := r.byID[h.ID]; ok {
		return "", fmt.Errorf("highlight %s: %w", h.ID, apperr.ErrAlreadyExists)
	}
	if _, ok := r.retired[h.ID]; ok {
		return "", fmt.Errorf("highlight %s: id already used: %w", h.ID, apperr.ErrConflict)
	}
	if h.Intent == "" {
		h.Intent = models.IntentNote
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = r.now()
	}
	h.Rects = slices.Clone(h.Rects)
	r.byID[h.ID] = h
	return h.ID, nil
}

// Load replaces the registry content with persisted highlights.
func (r *Registry) Load(hs []models.Highlight) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.byID {
		r.retired[id] = struct{}{}
	}
	r.byID = make(map[string]models.Highlight, len(hs))
	for _, h := range hs {
		h.Rects = slices.Clone(h.Rects)
		r.byID[h.ID] = h
		delete(r.retired, h.ID)
	}
}

// LoadDocument replaces the highlights of docID with hs, leaving other
// documents alone.
func (r *Registry) LoadDocument(docID string, hs []models.Highlight) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.byID {
		if h.DocumentID == docID {
			delete(r.byID, id)
			r.retired[id] = struct{}{}
		}
	}
	for _, h := range hs {
		if h.DocumentID != docID {
			continue
		}
		h.Rects = slices.Clone(h.Rects)
		r.byID[h.ID] = h
		delete(r.retired, h.ID)
	}
}

// Remove deletes the highlight with id. It reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	r.retired[id] = struct{}{}
	return true
}

// Lookup returns the highlight with id, or false when it no longer exists.
func (r *Registry) Lookup(id string) (models.Highlight, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byID[id]
	if !ok {
		return models.Highlight{}, false
	}
	h.Rects = slices.Clone(h.Rects)
	return h, true
}

// ByPage returns the highlights on page n of any document, oldest first.
func (r *Registry) ByPage(n int) []models.Highlight {
	return r.filter(func(h models.Highlight) bool { return h.PageNumber == n })
}

// ByDocumentPage returns the highlights on page n of document docID, oldest first.
func (r *Registry) ByDocumentPage(docID string, n int) []models.Highlight {
	return r.filter(func(h models.Highlight) bool { return h.DocumentID == docID && h.PageNumber == n })
}

// ByDocument returns every highlight of document docID, by page then age.
func (r *Registry) ByDocument(docID string) []models.Highlight {
	return r.filter(func(h models.Highlight) bool { return h.DocumentID == docID })
}

func (r *Registry) filter(keep func(models.Highlight) bool) []models.Highlight {
	r.mu.RLock()
	out := make([]models.Highlight, 0)
	for _, h := range r.byID {
		if keep(h) {
			h.Rects = slices.Clone(h.Rects)
			out = append(out, h)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Highlight) int {
		if a.PageNumber != b.PageNumber {
			return a.PageNumber - b.PageNumber
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// CurrentIDs returns a snapshot of the live ids.
func (r *Registry) CurrentIDs() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{}, len(r.byID))
	for id := range r.byID {
		out[id] = struct{}{}
	}
	return out
}

// Len returns the number of live highlights.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Stale returns the ids in ids that have no live highlight, in input order.
func (r *Registry) Stale(ids []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, id := range ids {
		if _, ok := r.byID[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// ResetDocument removes every highlight of docID and returns the removed ids.
func (r *Registry) ResetDocument(docID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, h := range r.byID {
		if h.DocumentID == docID {
			delete(r.byID, id)
			r.retired[id] = struct{}{}
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)
	return removed
}

// ResetPage removes every highlight on page n of docID and returns the removed ids.
func (r *Registry) ResetPage(docID string, n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, h := range r.byID {
		if h.DocumentID == docID && h.PageNumber == n {
			delete(r.byID, id)
			r.retired[id] = struct{}{}
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)
	return removed
}
