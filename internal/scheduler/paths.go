package scheduler

import "sort"

// CriticalPath returns the longest dependency chain measured in tasks, from a
// root (no dependencies) to a leaf (no dependents). When several chains share
// the maximum length the one preferring lexicographically smaller IDs at each
// step wins. An empty graph returns an empty path.
func CriticalPath(g *Graph) ([]string, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return []string{}, nil
	}

	// dist[id] is the number of tasks on the longest chain ending at id.
	dist := make(map[string]int, len(order))
	pred := make(map[string]string, len(order))
	for _, id := range order {
		dist[id] = 1
		for _, depID := range g.deps[id] {
			// deps are ascending, so strict > keeps the smaller predecessor on ties
			if dist[depID]+1 > dist[id] {
				dist[id] = dist[depID] + 1
				pred[id] = depID
			}
		}
	}

	end := ""
	for _, id := range g.ids {
		if end == "" || dist[id] > dist[end] {
			end = id
		}
	}

	path := []string{end}
	for {
		prev, ok := pred[path[len(path)-1]]
		if !ok {
			break
		}
		path = append(path, prev)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Bottleneck scores a task by how many tasks transitively depend on it.
type Bottleneck struct {
	ID          string `json:"id"`
	Descendants int    `json:"descendants"`
}

// Bottlenecks ranks tasks by number of distinct transitive dependents,
// highest first, ties broken by ID. topN <= 0 returns every task.
func Bottlenecks(g *Graph, topN int) ([]Bottleneck, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	scores := make([]Bottleneck, 0, len(g.ids))
	for _, id := range g.ids {
		scores = append(scores, Bottleneck{ID: id, Descendants: len(g.Descendants(id))})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Descendants != scores[j].Descendants {
			return scores[i].Descendants > scores[j].Descendants
		}
		return scores[i].ID < scores[j].ID
	})

	if topN > 0 && topN < len(scores) {
		scores = scores[:topN]
	}
	return scores, nil
}
