// Package outline decodes marker-indented outline text into a diagram graph.
//
// The number of leading marker characters is a line's depth; a line without
// markers is depth 0. A line is attached to the nearest preceding line with
// strictly smaller depth, lines with no such predecessor are roots. Depth
// need not be contiguous. Depth-1 lines open colour branches.
//
//	@startmindmap
//	Shop
//	* Cart
//	**_ add item
//	* Checkout
//	@endmindmap
package outline

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Palette is the fixed branch colour cycle.
var Palette = []string{"#3b82f6", "#ec4899", "#10b981", "#f59e0b", "#8b5cf6", "#06b6d4"}

// Layout spacing for node positions.
const (
	ColumnWidth = 350
	RowHeight   = 120
)

// DefaultMarker is the depth marker used by mind-map outlines.
const DefaultMarker = '*'

// Position is a node's layout coordinate.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Node is one outline line.
type Node struct {
	ID       string   `json:"id" yaml:"id"`
	Label    string   `json:"label" yaml:"label"`
	Depth    int      `json:"depth" yaml:"depth"`
	Color    string   `json:"color" yaml:"color"`
	Parent   string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	Position Position `json:"position" yaml:"position"`
}

// Edge links a parent to a child.
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Graph is a decoded outline. Nodes are in input order.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// DecodeError reports a line that could not be decoded. Line is 1-based.
type DecodeError struct {
	Line   int
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("outline line %d: %s", e.Line, e.Reason)
}

// Option configures Decode.
type Option func(*decoder)

// WithMarker sets the depth marker character.
func WithMarker(r rune) Option {
	return func(d *decoder) {
		d.marker = r
	}
}

type decoder struct {
	marker rune
}

// Decode parses text into a Graph. Empty input yields an empty graph.
func Decode(text string, opts ...Option) (*Graph, error) {
	d := decoder{marker: DefaultMarker}
	for _, opt := range opts {
		opt(&d)
	}

	g := &Graph{Nodes: []Node{}, Edges: []Edge{}}
	if !utf8.ValidString(text) {
		return nil, &DecodeError{Line: firstInvalidLine(text), Reason: "invalid UTF-8"}
	}

	// stack holds indexes into g.Nodes along the current ancestor chain.
	var stack []int
	branch := 0

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "@start") || strings.HasPrefix(line, "@end") {
			continue
		}

		depth := countPrefix(line, d.marker)
		label := strings.TrimLeft(line, string(d.marker))
		if depth > 0 {
			label = strings.TrimPrefix(label, "_")
		}
		label = strings.TrimSpace(label)

		for len(stack) > 0 && g.Nodes[stack[len(stack)-1]].Depth >= depth {
			stack = stack[:len(stack)-1]
		}

		n := len(g.Nodes) + 1
		node := Node{
			ID:       fmt.Sprintf("node-%d", n),
			Label:    label,
			Depth:    depth,
			Position: Position{X: depth * ColumnWidth, Y: (n - 1) * RowHeight},
		}

		switch {
		case depth == 1:
			node.Color = Palette[branch%len(Palette)]
			branch++
		case depth > 1 && len(stack) > 0:
			node.Color = g.Nodes[stack[len(stack)-1]].Color
		default:
			node.Color = Palette[0]
		}

		if len(stack) > 0 {
			parent := g.Nodes[stack[len(stack)-1]]
			node.Parent = parent.ID
			g.Edges = append(g.Edges, Edge{
				ID:     fmt.Sprintf("edge-%s-%s", parent.ID, node.ID),
				Source: parent.ID,
				Target: node.ID,
			})
		}

		g.Nodes = append(g.Nodes, node)
		stack = append(stack, len(g.Nodes)-1)
	}

	return g, nil
}

func countPrefix(s string, r rune) int {
	n := 0
	for _, c := range s {
		if c != r {
			break
		}
		n++
	}
	return n
}

func firstInvalidLine(text string) int {
	for i, line := range strings.Split(text, "\n") {
		if !utf8.ValidString(line) {
			return i + 1
		}
	}
	return 1
}
