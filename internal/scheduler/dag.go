package scheduler

import (
	"fmt"
	"slices"
	"sort"

	"github.com/gammazero/toposort"
)

// WarningKind classifies a non-fatal inconsistency found at build time.
type WarningKind string

const (
	WarnBlocksNotDerived    WarningKind = "blocks_not_derived"   // declared blocks entry does not depend on the task
	WarnBlocksMissing       WarningKind = "blocks_missing"       // dependent absent from a declared blocks list
	WarnBlocksUnknown       WarningKind = "blocks_unknown"       // blocks entry names an unknown task
	WarnDuplicateDependency WarningKind = "duplicate_dependency" // repeated depends_on entry
	WarnScopeOverlap        WarningKind = "scope_overlap"        // shared scope entry with no ordering between the tasks
)

// Warning is an advisory finding. Warnings never affect scheduling.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	TaskID  string      `json:"task_id"`
	Related string      `json:"related"`
}

func (w Warning) String() string {
	switch w.Kind {
	case WarnBlocksNotDerived:
		return fmt.Sprintf("task %q lists %q in blocks, but %q does not depend on it", w.TaskID, w.Related, w.Related)
	case WarnBlocksMissing:
		return fmt.Sprintf("task %q is depended on by %q, which is missing from its blocks", w.TaskID, w.Related)
	case WarnBlocksUnknown:
		return fmt.Sprintf("task %q lists unknown task %q in blocks", w.TaskID, w.Related)
	case WarnDuplicateDependency:
		return fmt.Sprintf("task %q lists dependency %q more than once", w.TaskID, w.Related)
	case WarnScopeOverlap:
		return fmt.Sprintf("task %q shares scope with %q, but neither depends on the other", w.TaskID, w.Related)
	}
	return fmt.Sprintf("%s: %s -> %s", w.Kind, w.TaskID, w.Related)
}

// Graph is an immutable dependency graph built from a task snapshot.
// All methods are safe for concurrent use.
type Graph struct {
	tasks      map[string]Task     // All tasks indexed by ID
	ids        []string            // Task IDs, ascending
	deps       map[string][]string // taskID -> deduplicated, sorted depends_on
	dependents map[string][]string // taskID -> tasks that depend on it (effective blocks)
	cycles     []Cycle
	order      []string // Topological order, dependencies first; nil when cyclic
	warnings   []Warning
}

// Build constructs a graph from the given tasks. The input is not modified.
// Structural problems (missing or duplicate IDs, unknown dependencies) are all
// collected into a *BuildError. Cycles are not build errors: they are recorded
// on the graph and reported by Validate and every scheduling query.
func Build(tasks []Task) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]Task, len(tasks)),
		ids:        make([]string, 0, len(tasks)),
		deps:       make(map[string][]string, len(tasks)),
		dependents: make(map[string][]string),
	}

	var problems []error
	for i, task := range tasks {
		if task.ID == "" {
			problems = append(problems, &MissingIDError{Index: i})
			continue
		}
		if _, exists := g.tasks[task.ID]; exists {
			problems = append(problems, &DuplicateIDError{ID: task.ID})
			continue
		}
		g.tasks[task.ID] = task.Clone()
		g.ids = append(g.ids, task.ID)
	}
	sort.Strings(g.ids)

	for _, id := range g.ids {
		task := g.tasks[id]
		deps, dupes := dedupeSorted(task.DependsOn)
		for _, dup := range dupes {
			g.warnings = append(g.warnings, Warning{Kind: WarnDuplicateDependency, TaskID: id, Related: dup})
		}
		for _, depID := range deps {
			if _, exists := g.tasks[depID]; !exists {
				problems = append(problems, &UnknownDependencyError{TaskID: id, MissingID: depID})
				continue
			}
			g.deps[id] = append(g.deps[id], depID)
			// ids are visited in order, so each dependents list stays sorted
			g.dependents[depID] = append(g.dependents[depID], id)
		}
	}

	if len(problems) > 0 {
		return nil, &BuildError{Problems: problems}
	}

	g.warnings = append(g.warnings, g.checkBlocks()...)
	g.warnings = append(g.warnings, g.checkScopes()...)
	g.cycles = FindCycles(g)
	if len(g.cycles) == 0 {
		order, err := g.toposort()
		if err != nil {
			return nil, err
		}
		g.order = order
	}

	return g, nil
}

// toposort orders task IDs so that every dependency precedes its dependents.
func (g *Graph) toposort() ([]string, error) {
	if len(g.ids) == 0 {
		return nil, nil
	}
	var edges []toposort.Edge
	for _, id := range g.ids {
		deps := g.deps[id]
		if len(deps) == 0 {
			// Edge from nil keeps isolated tasks in the result
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range deps {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("topological sort: %w", err)
	}

	order := make([]string, 0, len(g.ids))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(g.ids) {
		return nil, fmt.Errorf("topological sort lost %d of %d tasks", len(g.ids)-len(order), len(g.ids))
	}
	return order, nil
}

// checkBlocks compares each declared blocks list with the derived dependents.
func (g *Graph) checkBlocks() []Warning {
	var warnings []Warning
	for _, id := range g.ids {
		declared, _ := dedupeSorted(g.tasks[id].Blocks)
		if len(declared) == 0 {
			continue
		}
		derived := g.dependents[id]
		for _, b := range declared {
			if _, exists := g.tasks[b]; !exists {
				warnings = append(warnings, Warning{Kind: WarnBlocksUnknown, TaskID: id, Related: b})
				continue
			}
			if !slices.Contains(derived, b) {
				warnings = append(warnings, Warning{Kind: WarnBlocksNotDerived, TaskID: id, Related: b})
			}
		}
		for _, d := range derived {
			if !slices.Contains(declared, d) {
				warnings = append(warnings, Warning{Kind: WarnBlocksMissing, TaskID: id, Related: d})
			}
		}
	}
	return warnings
}

// checkScopes flags pairs of open tasks that touch the same scope entry while
// neither is an ancestor of the other, so nothing orders their execution.
// Entries are compared exactly.
func (g *Graph) checkScopes() []Warning {
	var open []string
	for _, id := range g.ids {
		if len(g.tasks[id].Scope) > 0 && !g.tasks[id].Status.IsTerminal() {
			open = append(open, id)
		}
	}

	var warnings []Warning
	ancestors := make(map[string][]string)
	exact := ConflictAnalyzer{}
	for i, a := range open {
		for _, b := range open[i+1:] {
			if !exact.shareScope(g.tasks[a], g.tasks[b]) {
				continue
			}
			if _, ok := ancestors[a]; !ok {
				ancestors[a] = g.Ancestors(a)
			}
			if _, ok := ancestors[b]; !ok {
				ancestors[b] = g.Ancestors(b)
			}
			if slices.Contains(ancestors[a], b) || slices.Contains(ancestors[b], a) {
				continue
			}
			warnings = append(warnings, Warning{Kind: WarnScopeOverlap, TaskID: a, Related: b})
		}
	}
	return warnings
}

// Validate returns a *CyclicDependencyError if the graph is not a DAG.
func (g *Graph) Validate() error {
	if len(g.cycles) > 0 {
		return &CyclicDependencyError{Cycles: g.Cycles()}
	}
	return nil
}

// Cycles returns the cycles found at build time.
func (g *Graph) Cycles() []Cycle {
	out := make([]Cycle, len(g.cycles))
	for i, c := range g.cycles {
		out[i] = append(Cycle(nil), c...)
	}
	return out
}

// Warnings returns advisory findings such as blocks/depends_on drift.
func (g *Graph) Warnings() []Warning {
	return append([]Warning(nil), g.warnings...)
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.ids)
}

// Has reports whether a task with the given ID exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.tasks[id]
	return ok
}

// Task returns a copy of the task with the given ID.
func (g *Graph) Task(id string) (Task, bool) {
	task, ok := g.tasks[id]
	if !ok {
		return Task{}, false
	}
	return task.Clone(), true
}

// Tasks returns copies of all tasks ordered by ID.
func (g *Graph) Tasks() []Task {
	tasks := make([]Task, 0, len(g.ids))
	for _, id := range g.ids {
		tasks = append(tasks, g.tasks[id].Clone())
	}
	return tasks
}

// IDs returns all task IDs in ascending order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.ids...)
}

// DependsOn returns the deduplicated dependencies of a task.
func (g *Graph) DependsOn(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the tasks that declare id as a dependency. This is the
// effective blocks set of the task.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Order returns the topological order (dependencies first), or a
// *CyclicDependencyError when the graph has cycles.
func (g *Graph) Order() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return append([]string(nil), g.order...), nil
}

// Descendants returns every task that directly or transitively depends on id,
// in ascending order.
func (g *Graph) Descendants(id string) []string {
	return g.reach(id, g.dependents)
}

// Ancestors returns every task that id directly or transitively depends on,
// in ascending order.
func (g *Graph) Ancestors(id string) []string {
	return g.reach(id, g.deps)
}

func (g *Graph) reach(start string, edges map[string][]string) []string {
	visited := map[string]bool{start: true}
	queue := append([]string(nil), edges[start]...)
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		out = append(out, id)
		queue = append(queue, edges[id]...)
	}
	sort.Strings(out)
	return out
}

// InProgress returns the tasks currently in progress, ordered by ID.
func (g *Graph) InProgress() []Task {
	var tasks []Task
	for _, id := range g.ids {
		if g.tasks[id].Status == StatusInProgress {
			tasks = append(tasks, g.tasks[id].Clone())
		}
	}
	return tasks
}

// dedupeSorted returns the sorted unique values of in and the values that
// appeared more than once.
func dedupeSorted(in []string) (unique []string, dupes []string) {
	if len(in) == 0 {
		return nil, nil
	}
	sorted := append([]string(nil), in...)
	sort.Strings(sorted)
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			if len(dupes) == 0 || dupes[len(dupes)-1] != v {
				dupes = append(dupes, v)
			}
			continue
		}
		unique = append(unique, v)
	}
	return unique, dupes
}
