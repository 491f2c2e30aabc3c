package anchor

// Boundary is a (node, offset) boundary point.
type Boundary struct {
	Node   *Node
	Offset int
}

// Range is a live selection range between two boundary points.
type Range struct {
	Start Boundary
	End   Boundary
}

// Selection is the host document's active selection. Firefox-class engines can
// report several ranges; others report at most one.
type Selection struct {
	Ranges []Range
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	for _, r := range s.Ranges {
		if !r.Collapsed() {
			return false
		}
	}
	return true
}

// How selects the boundary pair compared by Range.Compare.
type How int

const (
	StartToStart How = iota
	StartToEnd
	EndToEnd
	EndToStart
)

// Collapsed reports whether the range starts and ends at the same point.
func (r Range) Collapsed() bool {
	return r.Start.Node == r.End.Node && r.Start.Offset == r.End.Offset
}

// Compare follows DOM compareBoundaryPoints: StartToEnd compares r's end with
// source's start, EndToStart compares r's start with source's end.
func (r Range) Compare(how How, source Range) int {
	switch how {
	case StartToStart:
		return comparePoints(r.Start, source.Start)
	case StartToEnd:
		return comparePoints(r.End, source.Start)
	case EndToEnd:
		return comparePoints(r.End, source.End)
	default:
		return comparePoints(r.Start, source.End)
	}
}

// Equal reports whether both boundaries coincide.
func (r Range) Equal(other Range) bool {
	return r.Compare(StartToStart, other) == 0 && r.Compare(EndToEnd, other) == 0
}

// IntersectsNode reports whether node overlaps the range, with DOM semantics.
func (r Range) IntersectsNode(node *Node) bool {
	parent := node.parent
	if parent == nil {
		return node.Contains(r.Start.Node) || node.Contains(r.End.Node)
	}
	if node.root() != r.Start.Node.root() {
		return false
	}
	offset := node.index()
	return comparePoints(Boundary{parent, offset}, r.End) < 0 &&
		comparePoints(Boundary{parent, offset + 1}, r.Start) > 0
}

// comparePoints returns -1, 0 or 1 as a is before, equal to or after b.
func comparePoints(a, b Boundary) int {
	if a.Node == b.Node {
		return cmpInt(a.Offset, b.Offset)
	}
	if treeOrder(a.Node, b.Node) > 0 {
		return -comparePoints(b, a)
	}
	if a.Node.Contains(b.Node) {
		child := b.Node
		for child.parent != a.Node {
			child = child.parent
		}
		if child.index() < a.Offset {
			return 1
		}
	}
	return -1
}

// treeOrder compares the document positions of two nodes of the same tree.
// An ancestor precedes its descendants.
func treeOrder(a, b *Node) int {
	if a == b {
		return 0
	}
	ca, cb := a.ancestors(), b.ancestors()
	i := 0
	for i < len(ca) && i < len(cb) && ca[i] == cb[i] {
		i++
	}
	switch {
	case i == len(ca):
		return -1
	case i == len(cb):
		return 1
	default:
		return cmpInt(ca[i].index(), cb[i].index())
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
