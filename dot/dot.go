// Package dot renders a tree.Spec as Graphviz DOT source, highlighting the
// currently active path.
//
// Grounded in the teacher's production.DefaultVisualizer.ExportDOT
// (internal/production/visualizer.go): same rankdir=LR box-node styling.
// Unlike the teacher's flat transition table (declared per event on each
// StateConfig), this package has no static edge list to render — messages
// decide transitions at runtime, not at definition time — so Export draws
// the containment tree plus the active path only, which is what spec.md's
// tree model actually owns statically.
package dot

import (
	"bytes"
	"fmt"

	"github.com/arborium/hsm/internal/tree"
)

// Export renders spec as DOT source, marking every node on activePath with
// a filled style.
func Export(spec tree.Spec, activePath []tree.Key) string {
	active := make(map[tree.Key]bool, len(activePath))
	for _, k := range activePath {
		active[k] = true
	}

	var buf bytes.Buffer
	buf.WriteString("digraph HSM {\n  rankdir=LR;\n  node [shape=box, fontsize=10, style=rounded];\n")

	root := spec.RootKey()
	for _, k := range spec.Descendants(root) {
		n, ok := spec.Node(k)
		if !ok {
			continue
		}
		style := "rounded"
		if active[k] {
			style = "rounded,filled"
		}
		shape := "box"
		if n.IsFinal {
			shape = "doublecircle"
		}
		fmt.Fprintf(&buf, "  %q [shape=%s, style=%q];\n", k.String(), shape, style)
		for _, c := range n.Children {
			fmt.Fprintf(&buf, "  %q -> %q;\n", k.String(), c.String())
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}
