package annotation

// ExpansionSnapshot records which markers were expanded before a print pass.
type ExpansionSnapshot map[string]bool

// SnapshotExpansion captures the expansion state of every marker.
func (b *Board) SnapshotExpansion() ExpansionSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := make(ExpansionSnapshot, len(b.markers))
	for id, m := range b.markers {
		s[id] = m.expanded
	}
	return s
}

// ExpandAll expands every marker for rendering. Nothing is persisted and
// edits in progress are kept.
func (b *Board) ExpandAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.markers {
		m.expanded = true
	}
}

// RestoreExpansion puts markers back the way s found them. Markers created
// after the snapshot keep their current state.
func (b *Board) RestoreExpansion(s ExpansionSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, expanded := range s {
		m, ok := b.markers[id]
		if !ok {
			continue
		}
		m.expanded = expanded
		if !expanded {
			m.editing, m.draft = false, ""
		}
	}
}

// Pager is the pagination state of one list view.
type Pager struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Unpaginated reports whether the pager shows the whole collection.
func (p Pager) Unpaginated() bool { return p.PageSize <= 0 }

// Bounds returns the [start, end) slice bounds of the current page in a
// collection of n items.
func (p Pager) Bounds(n int) (int, int) {
	if p.Unpaginated() {
		return 0, n
	}
	page := max(p.Page, 1)
	start := min((page-1)*p.PageSize, n)
	end := min(start+p.PageSize, n)
	return start, end
}

// Page returns the current page of items.
func Page[T any](items []T, p Pager) []T {
	start, end := p.Bounds(len(items))
	return items[start:end]
}

// PrintSnapshot is everything a print pass changes and must put back.
type PrintSnapshot struct {
	Expansion ExpansionSnapshot
	Pagers    map[string]Pager
}

// BeginPrint expands every marker and switches the given list pagers to the
// full collection, returning what is needed to undo both.
func (b *Board) BeginPrint(pagers map[string]*Pager) PrintSnapshot {
	s := PrintSnapshot{
		Expansion: b.SnapshotExpansion(),
		Pagers:    make(map[string]Pager, len(pagers)),
	}
	b.ExpandAll()
	for name, p := range pagers {
		s.Pagers[name] = *p
		p.Page, p.PageSize = 1, 0
	}
	return s
}

// EndPrint restores the expansion and pagination captured by BeginPrint.
func (b *Board) EndPrint(s PrintSnapshot, pagers map[string]*Pager) {
	b.RestoreExpansion(s.Expansion)
	for name, p := range pagers {
		if prev, ok := s.Pagers[name]; ok {
			*p = prev
		}
	}
}
