package graph

import (
	"fmt"
	"sort"
)

// Select resolves command-line targets into a set of instance IDs.
// Each target may name a service (selecting all its instances) or a
// single instance. An empty target list is a wildcard selecting every
// instance whose service is not marked omit; naming an omitted entity
// explicitly always selects it.
func (g *Graph) Select(targets []string) (map[string]bool, error) {
	selected := make(map[string]bool)

	if len(targets) == 0 {
		for id, node := range g.nodes {
			if node.Instance.Omit || node.Instance.Service.Omit {
				continue
			}
			selected[id] = true
		}
		return selected, nil
	}

	for _, target := range targets {
		if svc, ok := g.model.Services[target]; ok {
			for _, inst := range svc.Instances() {
				selected[inst.Name] = true
			}
			continue
		}
		if _, ok := g.nodes[target]; ok {
			selected[target] = true
			continue
		}
		return nil, fmt.Errorf("unknown service or instance %q", target)
	}
	return selected, nil
}

// Closure expands a selection along hard dependency edges: every
// instance a selected instance transitively requires joins the set.
// Omitted entities pulled in through the closure are included.
func (g *Graph) Closure(selected map[string]bool) map[string]bool {
	out := make(map[string]bool, len(selected))
	var walk func(id string)
	walk = func(id string) {
		if out[id] {
			return
		}
		out[id] = true
		for _, dep := range g.nodes[id].Requires {
			walk(dep)
		}
	}
	for id := range selected {
		walk(id)
	}
	return out
}

// SelectedLevels filters the wave ordering down to a selection,
// dropping levels left empty.
func (g *Graph) SelectedLevels(selected map[string]bool) [][]string {
	out := make([][]string, 0, len(g.levels))
	for _, level := range g.levels {
		kept := make([]string, 0, len(level))
		for _, id := range level {
			if selected[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// Flatten returns a selection as a single sorted wave, the shape used
// when ordering is disabled.
func Flatten(selected map[string]bool) [][]string {
	ids := make([]string, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return nil
	}
	return [][]string{ids}
}
