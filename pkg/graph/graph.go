// Package graph builds the instance dependency graph of an
// environment and computes the wave ordering plays execute in.
//
// Hard edges come from service-level requires declarations and
// constrain ordering; soft edges come from wants_info and only carry
// connection info into the dependent's environment. Cycle detection
// and wave assignment consider hard edges only.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flotilla-io/flotilla/pkg/entity"
)

// Node is one instance in the dependency graph.
type Node struct {
	// ID is the instance name.
	ID string

	// Instance is the entity this node schedules.
	Instance *entity.Instance

	// Level is the node's wave index. Nodes sharing a level have no
	// ordering constraint between them.
	Level int

	// Requires lists instance IDs this node hard-depends on.
	Requires []string

	// Dependents lists instance IDs that hard-depend on this node.
	Dependents []string

	// SoftDeps lists instance IDs whose connection info this node
	// receives without any ordering constraint.
	SoftDeps []string
}

// Graph is the built dependency graph of one environment.
type Graph struct {
	nodes  map[string]*Node
	levels [][]string
	model  *entity.Model
}

// Build constructs the graph from a validated model. Service-level
// requires edges fan out to every instance pair of the two services.
// A requires cycle among services is an error.
func Build(m *entity.Model) (*Graph, error) {
	if err := detectServiceCycles(m); err != nil {
		return nil, err
	}

	g := &Graph{
		nodes: make(map[string]*Node),
		model: m,
	}

	for _, svc := range m.Services {
		for _, inst := range svc.Instances() {
			g.nodes[inst.Name] = &Node{ID: inst.Name, Instance: inst}
		}
	}

	for _, svc := range m.Services {
		for _, dep := range svc.Requires {
			for _, inst := range svc.Instances() {
				node := g.nodes[inst.Name]
				for _, depInst := range m.Services[dep].Instances() {
					node.Requires = append(node.Requires, depInst.Name)
					g.nodes[depInst.Name].Dependents = append(g.nodes[depInst.Name].Dependents, inst.Name)
				}
			}
		}
		for _, dep := range svc.WantsInfo {
			for _, inst := range svc.Instances() {
				node := g.nodes[inst.Name]
				for _, depInst := range m.Services[dep].Instances() {
					node.SoftDeps = append(node.SoftDeps, depInst.Name)
				}
			}
		}
	}

	g.computeLevels()
	return g, nil
}

// Node returns the node for an instance name.
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Nodes returns all nodes ordered by ID.
func (g *Graph) Nodes() []*Node {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out
}

// Levels returns the wave ordering: instance IDs grouped by level,
// dependencies before dependents. IDs within a level are sorted.
func (g *Graph) Levels() [][]string {
	return g.levels
}

// ReverseLevels returns the levels deepest first, the order stop
// transitions run in.
func (g *Graph) ReverseLevels() [][]string {
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		out[len(g.levels)-1-i] = level
	}
	return out
}

// computeLevels runs Kahn's algorithm over hard edges, grouping nodes
// into waves.
func (g *Graph) computeLevels() {
	inDegree := make(map[string]int, len(g.nodes))
	for id, node := range g.nodes {
		inDegree[id] = len(node.Requires)
	}

	current := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			current = append(current, id)
		}
	}

	for len(current) > 0 {
		sort.Strings(current)
		level := len(g.levels)
		for _, id := range current {
			g.nodes[id].Level = level
		}
		g.levels = append(g.levels, current)

		next := make([]string, 0)
		for _, id := range current {
			for _, dependent := range g.nodes[id].Dependents {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}
}

// detectServiceCycles runs DFS over the service requires graph and
// reports the cycle path when one exists.
func detectServiceCycles(m *entity.Model) error {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	names := make([]string, 0, len(m.Services))
	for name := range m.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var visit func(name string, path []string) []string
	visit = func(name string, path []string) []string {
		visited[name] = true
		inStack[name] = true
		path = append(path, name)

		deps := append([]string(nil), m.Services[name].Requires...)
		sort.Strings(deps)
		for _, dep := range deps {
			if !visited[dep] {
				if cycle := visit(dep, path); cycle != nil {
					return cycle
				}
			} else if inStack[dep] {
				start := 0
				for i, id := range path {
					if id == dep {
						start = i
						break
					}
				}
				return append(append([]string(nil), path[start:]...), dep)
			}
		}

		inStack[name] = false
		return nil
	}

	for _, name := range names {
		if !visited[name] {
			if cycle := visit(name, nil); cycle != nil {
				return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " -> "))
			}
		}
	}
	return nil
}
