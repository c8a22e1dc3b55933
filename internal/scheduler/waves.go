package scheduler

// ExecutionWaves groups the remaining work into layers that can run in
// parallel. Wave 0 holds every non-terminal task whose dependencies are all
// Done and that have no non-terminal ancestor behind a Done task; wave k holds
// tasks whose nearest non-terminal ancestors all sit in waves 0..k-1.
// Done and Cancelled tasks never appear. Tasks that can never run because they
// (transitively) depend on a Cancelled task are left out; see Stranded.
// Each wave is ordered like ReadyTasks.
func ExecutionWaves(g *Graph) ([][]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	stranded := make(map[string]bool)
	for _, id := range g.stranded() {
		stranded[id] = true
	}

	include := func(id string) bool {
		return !g.tasks[id].Status.IsTerminal() && !stranded[id]
	}
	// Only Done dependencies are dropped; stranded tasks have already been
	// excluded, so no included task depends on a Cancelled one.
	satisfied := func(id string) bool {
		return g.tasks[id].Status == StatusDone
	}
	return g.layer(include, satisfied), nil
}

// Layers is the full schedule: the same layering as ExecutionWaves applied to
// every task regardless of status.
func Layers(g *Graph) ([][]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	all := func(string) bool { return true }
	none := func(string) bool { return false }
	return g.layer(all, none), nil
}

// Stranded returns, in ID order, the non-terminal tasks that can never become
// ready because a direct or transitive dependency is Cancelled.
func Stranded(g *Graph) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g.stranded(), nil
}

func (g *Graph) stranded() []string {
	hit := make(map[string]bool)
	for _, id := range g.ids {
		if g.tasks[id].Status != StatusCancelled {
			continue
		}
		for _, d := range g.Descendants(id) {
			hit[d] = true
		}
	}

	out := []string{}
	for _, id := range g.ids {
		if hit[id] && !g.tasks[id].Status.IsTerminal() {
			out = append(out, id)
		}
	}
	return out
}

// layer runs Kahn's algorithm over the included tasks, grouping by depth.
// An excluded but satisfied dependency counts as met, yet ordering still
// carries through it: a task waits for every included task reachable over
// satisfied dependencies. An excluded, unsatisfied direct dependency keeps the
// task out of every wave.
func (g *Graph) layer(include, satisfied func(string) bool) [][]string {
	indegree := make(map[string]int)
	children := make(map[string][]string)
	for _, id := range g.ids {
		if !include(id) {
			continue
		}
		parents, blocked := g.includedAncestors(id, include, satisfied)
		indegree[id] = len(parents)
		if blocked {
			indegree[id]++
		}
		for _, p := range parents {
			children[p] = append(children[p], id)
		}
	}

	var current []string
	for _, id := range g.ids {
		if n, ok := indegree[id]; ok && n == 0 {
			current = append(current, id)
		}
	}

	waves := [][]string{}
	for len(current) > 0 {
		g.sortByPriority(current)
		waves = append(waves, current)

		var next []string
		for _, id := range current {
			for _, child := range children[id] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		current = next
	}
	return waves
}

// includedAncestors returns the nearest included tasks above id, walking
// through excluded dependencies that are satisfied. blocked reports a direct
// dependency that is neither included nor satisfied.
func (g *Graph) includedAncestors(id string, include, satisfied func(string) bool) (parents []string, blocked bool) {
	seen := make(map[string]bool)
	queue := []string{}
	for _, depID := range g.deps[id] {
		switch {
		case include(depID):
			if !seen[depID] {
				seen[depID] = true
				parents = append(parents, depID)
			}
		case satisfied(depID):
			queue = append(queue, depID)
		default:
			blocked = true
		}
	}

	// Past a satisfied dependency only included tasks matter
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, depID := range g.deps[cur] {
			if seen[depID] {
				continue
			}
			if include(depID) {
				seen[depID] = true
				parents = append(parents, depID)
				continue
			}
			queue = append(queue, depID)
		}
	}
	return parents, blocked
}
