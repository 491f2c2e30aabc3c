// Package anchor resolves live text selections on rendered pages into stable
// anchors and keeps the per-page end-of-content marker next to the moving edge
// of the selection.
package anchor

import (
	"slices"
	"unicode/utf8"

	"github.com/starford/verba/internal/models"
)

// Class names understood by the resolver.
const (
	ClassTextLayer = "textLayer"
	ClassEndMarker = "endOfContent"
)

// NodeKind distinguishes text nodes from elements.
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
)

// Node is a minimal rendered-document node: enough tree structure to compare
// boundary points and to move the end marker around.
type Node struct {
	Kind    NodeKind
	Text    string
	Classes []string
	// Size is the rendered size of an element; text layers carry the page size.
	Size models.Size

	parent   *Node
	children []*Node
}

// NewElement returns a detached element with the given classes.
func NewElement(classes ...string) *Node {
	return &Node{Kind: ElementNode, Classes: classes}
}

// NewText returns a detached text node.
func NewText(s string) *Node {
	return &Node{Kind: TextNode, Text: s}
}

// NewTextLayer returns a text-layer element sized to the page.
func NewTextLayer(size models.Size) *Node {
	n := NewElement(ClassTextLayer)
	n.Size = size
	return n
}

// NewEndMarker returns a detached end-of-content marker element.
func NewEndMarker() *Node {
	return NewElement(ClassEndMarker)
}

// Append attaches children at the end of n and returns n.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		n.InsertBefore(c, nil)
	}
	return n
}

// Parent returns the parent node, or nil when detached.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child list. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// HasClass reports whether the element carries class c.
func (n *Node) HasClass(c string) bool {
	return n.Kind == ElementNode && slices.Contains(n.Classes, c)
}

// Contains reports whether other is n or a descendant of n.
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Closest returns n or its nearest ancestor element carrying class c.
func (n *Node) Closest(c string) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.HasClass(c) {
			return cur
		}
	}
	return nil
}

// Element returns n when it is an element, otherwise its parent.
func (n *Node) Element() *Node {
	if n.Kind == ElementNode {
		return n
	}
	return n.parent
}

// NextSibling returns the sibling following n, or nil.
func (n *Node) NextSibling() *Node {
	if n.parent == nil {
		return nil
	}
	i := n.index()
	if i+1 < len(n.parent.children) {
		return n.parent.children[i+1]
	}
	return nil
}

// InsertBefore moves child under n, placed before ref. A nil ref appends.
func (n *Node) InsertBefore(child, ref *Node) {
	if child == ref {
		return
	}
	child.Remove()
	child.parent = n
	if ref == nil || ref.parent != n {
		n.children = append(n.children, child)
		return
	}
	n.children = slices.Insert(n.children, ref.index(), child)
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	if n.parent == nil {
		return
	}
	p := n.parent
	p.children = slices.Delete(p.children, n.index(), n.index()+1)
	n.parent = nil
}

// Length is the boundary-point length of n: characters for text, children for elements.
func (n *Node) Length() int {
	if n.Kind == TextNode {
		return utf8.RuneCountInString(n.Text)
	}
	return len(n.children)
}

func (n *Node) index() int {
	if n.parent == nil {
		return 0
	}
	return slices.Index(n.parent.children, n)
}

func (n *Node) root() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// ancestors returns the chain from the root down to n, inclusive.
func (n *Node) ancestors() []*Node {
	var chain []*Node
	for cur := n; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	return chain
}
