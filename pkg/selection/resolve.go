// Package selection maps text selections made in a rendered script back to
// line indices and tracks the reader's selection state between gestures.
package selection

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"scriptboard/pkg/segment"
)

// Range is an inclusive range of line indices.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether line i falls inside the range.
func (r Range) Contains(i int) bool {
	return i >= r.Start && i <= r.End
}

// Node is a position in rendered output that can be walked towards the root.
type Node interface {
	Parent() Node
	// LineIndex returns the line marker carried by this node, if any.
	LineIndex() (int, bool)
}

// Selection is a raw selection as reported by the rendering surface.
type Selection struct {
	Anchor    Node
	Focus     Node
	Text      string
	Collapsed bool
}

// Resolve maps a selection to the inclusive range of lines it spans. It
// reports false when the selection is collapsed, empty, or has a boundary
// outside any marked line.
func Resolve(sel Selection) (Range, bool) {
	if sel.Collapsed || strings.TrimSpace(sel.Text) == "" {
		return Range{}, false
	}
	a, ok := lineOf(sel.Anchor)
	if !ok {
		return Range{}, false
	}
	b, ok := lineOf(sel.Focus)
	if !ok {
		return Range{}, false
	}
	return Range{Start: min(a, b), End: max(a, b)}, true
}

func lineOf(n Node) (int, bool) {
	for n != nil {
		if i, ok := n.LineIndex(); ok {
			return i, true
		}
		n = n.Parent()
	}
	return 0, false
}

// Marker is a bare line marker, used when the client has already located the
// line element and only reports its index.
type Marker int

func (Marker) Parent() Node { return nil }

func (m Marker) LineIndex() (int, bool) {
	if m < 0 {
		return 0, false
	}
	return int(m), true
}

// HTMLNode adapts a parsed node of rendered reader markup.
func HTMLNode(n *html.Node) Node {
	if n == nil {
		return nil
	}
	return htmlNode{n}
}

type htmlNode struct{ n *html.Node }

func (h htmlNode) Parent() Node {
	return HTMLNode(h.n.Parent)
}

func (h htmlNode) LineIndex() (int, bool) {
	if h.n.Type != html.ElementNode {
		return 0, false
	}
	for _, a := range h.n.Attr {
		if a.Key != segment.LineIndexAttr {
			continue
		}
		i, err := strconv.Atoi(strings.TrimSpace(a.Val))
		if err != nil || i < 0 {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
