package scheduler

import "strings"

// Cycle is a closed dependency chain. Each task depends on the next one and the
// last depends on the first.
type Cycle []string

func (c Cycle) String() string {
	if len(c) == 0 {
		return ""
	}
	return strings.Join(c, " -> ") + " -> " + c[0]
}

const (
	white = iota // unvisited
	grey         // on the DFS stack
	black        // finished
)

// FindCycles reports every cycle closed by a back edge in a depth-first walk
// over the dependency edges. Each task is visited once. Roots and edges are
// explored in ascending ID order, so the result is deterministic. An acyclic
// graph yields nil.
func FindCycles(g *Graph) []Cycle {
	color := make(map[string]int, len(g.ids))
	pos := make(map[string]int, len(g.ids)) // index of a grey node on the stack
	var stack []string
	var cycles []Cycle

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		pos[id] = len(stack)
		stack = append(stack, id)

		for _, dep := range g.deps[id] {
			switch color[dep] {
			case white:
				visit(dep)
			case grey:
				cycle := append(Cycle(nil), stack[pos[dep]:]...)
				cycles = append(cycles, cycle)
			}
		}

		stack = stack[:len(stack)-1]
		delete(pos, id)
		color[id] = black
	}

	for _, id := range g.ids {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}
