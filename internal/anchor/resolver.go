package anchor

import (
	"slices"
	"sync"

	"github.com/starford/verba/internal/models"
)

// Container is a page's text layer together with its end-of-content marker.
type Container struct {
	PageNumber int
	Node       *Node
	Marker     *Node
	Active     bool
}

// Reset clears the active flag and returns the marker to the end of its own
// text layer with no explicit size.
func (c *Container) Reset() {
	c.Active = false
	if c.Marker == nil {
		return
	}
	c.Marker.Size = models.Size{}
	if c.Marker.parent != c.Node || c.Marker.NextSibling() != nil {
		c.Node.InsertBefore(c.Marker, nil)
	}
}

// ContainerMap lists the page containers of a rendered document.
type ContainerMap []*Container

// ByNode returns the container whose text layer is node.
func (m ContainerMap) ByNode(node *Node) (*Container, bool) {
	for _, c := range m {
		if c.Node == node {
			return c, true
		}
	}
	return nil, false
}

// ByPage returns the container for page n.
func (m ContainerMap) ByPage(n int) (*Container, bool) {
	for _, c := range m {
		if c.PageNumber == n {
			return c, true
		}
	}
	return nil, false
}

// holding returns the container whose text layer contains node.
func (m ContainerMap) holding(node *Node) (*Container, bool) {
	for _, c := range m {
		if c.Node.Contains(node) {
			return c, true
		}
	}
	return nil, false
}

// Resolver turns live selections into Anchors. It remembers the previously
// resolved range to tell which edge of the selection is being extended.
type Resolver struct {
	caps Capabilities

	mu              sync.Mutex
	prev            *Range
	prevModifyStart bool
}

// NewResolver creates a resolver for an engine with the given capabilities.
func NewResolver(caps Capabilities) *Resolver {
	return &Resolver{caps: caps}
}

// Capabilities returns the capabilities the resolver was built with.
func (r *Resolver) Capabilities() Capabilities { return r.caps }

// Resolve marks the containers intersected by sel as active and resets the
// rest. On engines that need it the end marker is moved next to the moving
// edge of the selection. It returns false when nothing is selected or when the
// engine handles selection extension itself; callers then fall back to the raw
// selection text at commit time.
func (r *Resolver) Resolve(sel Selection, containers ContainerMap) (Anchor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sel.Empty() {
		for _, c := range containers {
			c.Reset()
		}
		r.prev = nil
		return Anchor{}, false
	}

	active := make(map[*Container]bool, len(containers))
	for _, rng := range sel.Ranges {
		if rng.Collapsed() {
			continue
		}
		for _, c := range containers {
			if rng.IntersectsNode(c.Node) {
				active[c] = true
			}
		}
	}
	for _, c := range containers {
		if active[c] {
			c.Active = true
		} else {
			c.Reset()
		}
	}

	if !r.caps.RepositionMarker {
		return Anchor{}, false
	}

	rng := sel.Ranges[0]
	modifyStart := r.modifyStart(rng)
	anchor := newAnchor(rng, containers, modifyStart)

	r.placeMarker(rng, containers, modifyStart)

	clone := rng
	r.prev = &clone
	r.prevModifyStart = modifyStart
	return anchor, true
}

// Forget drops the remembered range, e.g. when the document is re-rendered.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.prev = nil
	r.mu.Unlock()
}

// modifyStart reports whether the user is extending the selection from its
// start: the end stayed where the previous range ended (or where it started,
// for a selection that flipped direction).
func (r *Resolver) modifyStart(rng Range) bool {
	if r.prev == nil {
		return false
	}
	if rng.Equal(*r.prev) {
		return r.prevModifyStart
	}
	return rng.Compare(EndToEnd, *r.prev) == 0 || rng.Compare(StartToEnd, *r.prev) == 0
}

func (r *Resolver) placeMarker(rng Range, containers ContainerMap, modifyStart bool) {
	edge := rng.End.Node
	if modifyStart {
		edge = rng.Start.Node
	}
	anchorEl := edge.Element()
	if anchorEl == nil || anchorEl.parent == nil {
		return
	}
	layer := anchorEl.parent.Closest(ClassTextLayer)
	if layer == nil {
		return
	}
	c, ok := containers.ByNode(layer)
	if !ok || c.Marker == nil || c.Marker == anchorEl {
		return
	}
	c.Marker.Size = layer.Size
	ref := anchorEl.NextSibling()
	if modifyStart {
		ref = anchorEl
	}
	if ref == c.Marker {
		return
	}
	anchorEl.parent.InsertBefore(c.Marker, ref)
}

// Position is an engine-independent boundary point: a page, a child-index path
// from the page's text layer (end markers skipped) and an offset.
type Position struct {
	PageNumber int   `json:"page_number"`
	Path       []int `json:"path"`
	Offset     int   `json:"offset"`
}

// Anchor is a selection snapshot that stays usable after the live selection
// is cleared.
type Anchor struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
	// Pages lists every page the selection touches, ascending.
	Pages []int `json:"pages"`
	// Backward is true when the selection was being extended from its start.
	Backward bool `json:"backward"`
}

func newAnchor(rng Range, containers ContainerMap, backward bool) Anchor {
	a := Anchor{
		Start:    positionOf(rng.Start, containers),
		End:      positionOf(rng.End, containers),
		Backward: backward,
	}
	for _, c := range containers {
		if rng.IntersectsNode(c.Node) {
			a.Pages = append(a.Pages, c.PageNumber)
		}
	}
	slices.Sort(a.Pages)
	return a
}

func positionOf(b Boundary, containers ContainerMap) Position {
	base := b.Node.root()
	page := 0
	if c, ok := containers.holding(b.Node); ok {
		base = c.Node
		page = c.PageNumber
	}
	var path []int
	for cur := b.Node; cur != base && cur.parent != nil; cur = cur.parent {
		path = append(path, contentIndex(cur))
	}
	slices.Reverse(path)
	offset := b.Offset
	if b.Node.Kind == ElementNode {
		offset = contentOffset(b.Node, b.Offset)
	}
	return Position{PageNumber: page, Path: path, Offset: offset}
}

// contentIndex is n's index among its siblings, end markers excluded.
func contentIndex(n *Node) int {
	i := 0
	for _, s := range n.parent.children {
		if s == n {
			return i
		}
		if !s.HasClass(ClassEndMarker) {
			i++
		}
	}
	return i
}

// contentOffset converts a child offset of el to one that ignores end markers.
func contentOffset(el *Node, offset int) int {
	out := 0
	for i, c := range el.children {
		if i >= offset {
			break
		}
		if !c.HasClass(ClassEndMarker) {
			out++
		}
	}
	return out
}

// Locate rebuilds a live range for the anchor against the current containers.
// It returns false when a page or path no longer exists.
func (a Anchor) Locate(containers ContainerMap) (Range, bool) {
	start, ok := locate(a.Start, containers)
	if !ok {
		return Range{}, false
	}
	end, ok := locate(a.End, containers)
	if !ok {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

func locate(p Position, containers ContainerMap) (Boundary, bool) {
	c, ok := containers.ByPage(p.PageNumber)
	if !ok {
		return Boundary{}, false
	}
	cur := c.Node
	for _, idx := range p.Path {
		next := nthContent(cur, idx)
		if next == nil {
			return Boundary{}, false
		}
		cur = next
	}
	offset := p.Offset
	if cur.Kind == ElementNode {
		offset = liveOffset(cur, p.Offset)
	}
	if offset > cur.Length() {
		return Boundary{}, false
	}
	return Boundary{Node: cur, Offset: offset}, true
}

func nthContent(n *Node, idx int) *Node {
	i := 0
	for _, c := range n.children {
		if c.HasClass(ClassEndMarker) {
			continue
		}
		if i == idx {
			return c
		}
		i++
	}
	return nil
}

func liveOffset(el *Node, contentOff int) int {
	seen := 0
	for i, c := range el.children {
		if seen == contentOff {
			return i
		}
		if !c.HasClass(ClassEndMarker) {
			seen++
		}
	}
	return len(el.children)
}
