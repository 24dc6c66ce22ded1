package outline

import (
	"fmt"
	"io"
	"strings"
)

// Empty reports whether the graph has no nodes.
func (g *Graph) Empty() bool {
	return g == nil || len(g.Nodes) == 0
}

// Node returns the node with id.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Roots returns the nodes without a parent, in input order.
func (g *Graph) Roots() []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Parent == "" {
			out = append(out, n)
		}
	}
	return out
}

// Children returns the direct children of id, in input order.
func (g *Graph) Children(id string) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Parent == id {
			out = append(out, n)
		}
	}
	return out
}

// BranchCount returns the number of depth-1 branches.
func (g *Graph) BranchCount() int {
	n := 0
	for _, node := range g.Nodes {
		if node.Depth == 1 {
			n++
		}
	}
	return n
}

// WriteTree renders the graph as an indented tree, two spaces per level of
// actual nesting.
func (g *Graph) WriteTree(w io.Writer) error {
	for _, root := range g.Roots() {
		if err := g.writeNode(w, root, 0); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) writeNode(w io.Writer, n Node, level int) error {
	if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", level), n.Label); err != nil {
		return err
	}
	for _, child := range g.Children(n.ID) {
		if err := g.writeNode(w, child, level+1); err != nil {
			return err
		}
	}
	return nil
}
