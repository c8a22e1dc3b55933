package scheduler

import "sort"

// ReadyTasks returns the IDs of tasks that can start now: status Todo with
// every dependency Done. Results are ordered by priority (Critical first) and
// then by ID. Blocks declarations play no part. A graph with cycles yields a
// *CyclicDependencyError.
func ReadyTasks(g *Graph) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	var ready []string
	for _, id := range g.ids {
		if g.IsReady(id) {
			ready = append(ready, id)
		}
	}
	g.sortByPriority(ready)
	return ready, nil
}

// IsReady reports whether a single task is ready. It does not check for
// cycles; a task on a cycle always has an unmet dependency anyway unless
// every member is Done.
func (g *Graph) IsReady(id string) bool {
	task, ok := g.tasks[id]
	if !ok || task.Status != StatusTodo {
		return false
	}
	return len(g.UnmetDependencies(id)) == 0
}

// UnmetDependencies returns the dependencies of id that are not Done.
func (g *Graph) UnmetDependencies(id string) []string {
	var unmet []string
	for _, depID := range g.deps[id] {
		if g.tasks[depID].Status != StatusDone {
			unmet = append(unmet, depID)
		}
	}
	return unmet
}

// sortByPriority orders ids by priority rank, then ID.
func (g *Graph) sortByPriority(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := g.tasks[ids[i]].Priority.Rank(), g.tasks[ids[j]].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
}
