package graph

import (
	"fmt"
	"strings"
)

// ToDOT renders the graph in Graphviz DOT form, grouping instances by
// wave. Hard edges are solid, soft edges dashed.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph deptree {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_wave_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Wave %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			node := g.nodes[id]
			label := fmt.Sprintf("%s\\n%s @ %s", id, node.Instance.Service.Name, node.Instance.Ship.Name)
			sb.WriteString(fmt.Sprintf("    %q [label=\"%s\"];\n", id, label))
		}
		sb.WriteString("  }\n\n")
	}

	for _, node := range g.Nodes() {
		for _, dep := range node.Requires {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", dep, node.ID))
		}
		for _, dep := range node.SoftDeps {
			sb.WriteString(fmt.Sprintf("  %q -> %q [style=dashed, color=gray];\n", dep, node.ID))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
