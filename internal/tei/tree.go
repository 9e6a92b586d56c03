package tei

import (
	"strings"

	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/internal/layout"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

// Node is one element of the entity tree. A leaf carries its text; a
// branch wraps the serialisation of its children. Tokens, when set, is the
// span the node was built from.
type Node struct {
	Label    label.Label
	Text     string
	Children []*Node
	Tokens   []layout.Token
	branch   bool
}

// Leaf returns a terminal node.
func Leaf(l label.Label, text string) *Node {
	return &Node{Label: l, Text: text}
}

// Branch returns a node wrapping children. A branch with no children
// serialises as an empty element.
func Branch(l label.Label, children []*Node) *Node {
	return &Node{Label: l, Children: children, branch: true}
}

// IsLeaf reports whether the node is terminal.
func (n *Node) IsLeaf() bool {
	return !n.branch
}

// Walk visits n and its descendants depth first. fn returning false stops
// the descent below that node.
func (n *Node) Walk(fn func(*Node, int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Serialize renders the nodes in order. On error nothing is returned.
func Serialize(nodes []*Node) (string, error) {
	var sb strings.Builder
	for _, n := range nodes {
		if err := n.write(&sb); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func (n *Node) write(sb *strings.Builder) error {
	if n.IsLeaf() {
		s, err := Emit(n.Text, n.Label)
		if err != nil {
			return err
		}
		sb.WriteString(s)
		return nil
	}
	el, ok := n.Label.Element()
	if !ok {
		return apperrors.InvalidLabel("label %s has no output element", n.Label)
	}
	sb.WriteString("<" + el + ">")
	for _, c := range n.Children {
		if err := c.write(sb); err != nil {
			return err
		}
	}
	sb.WriteString("</" + el + ">")
	return nil
}
