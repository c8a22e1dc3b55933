package scheduler

import (
	"path"
	"sort"
	"strings"
)

// MatchMode selects how two scope entries are compared.
type MatchMode int

const (
	// MatchExact treats scope entries as opaque strings.
	MatchExact MatchMode = iota
	// MatchPattern additionally understands globs ("src/*.go") and directory
	// prefixes ("src/", "src/**").
	MatchPattern
)

// ParseMatchMode maps "exact" or "pattern" onto a MatchMode. Empty means exact.
func ParseMatchMode(raw string) (MatchMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "exact":
		return MatchExact, true
	case "pattern", "glob":
		return MatchPattern, true
	}
	return MatchExact, false
}

func (m MatchMode) String() string {
	if m == MatchPattern {
		return "pattern"
	}
	return "exact"
}

// Conflict names an in-progress task and the resources it shares with a candidate.
type Conflict struct {
	TaskID    string   `json:"task_id"`
	Resources []string `json:"resources"`
}

// ConflictAnalyzer reports scope overlaps between a candidate task and tasks
// already in progress. Results are advisory; enforcement is ScopeLocks' job.
type ConflictAnalyzer struct {
	Mode MatchMode
}

// Conflicts returns the IDs of in-progress tasks whose scope intersects the
// candidate's scope, using exact matching.
func Conflicts(candidate Task, inProgress []Task) []string {
	return ConflictAnalyzer{}.Conflicts(candidate, inProgress)
}

// Conflicts returns the sorted IDs of conflicting tasks. Tasks not in
// progress and the candidate itself are ignored.
func (a ConflictAnalyzer) Conflicts(candidate Task, inProgress []Task) []string {
	details := a.Details(candidate, inProgress)
	ids := make([]string, 0, len(details))
	for _, c := range details {
		ids = append(ids, c.TaskID)
	}
	return ids
}

// Details is like Conflicts but also lists the overlapping candidate resources.
func (a ConflictAnalyzer) Details(candidate Task, inProgress []Task) []Conflict {
	conflicts := []Conflict{}
	if len(candidate.Scope) == 0 {
		return conflicts
	}

	seen := make(map[string]bool)
	for _, other := range inProgress {
		if other.Status != StatusInProgress || other.ID == candidate.ID || seen[other.ID] {
			continue
		}
		seen[other.ID] = true

		var shared []string
		for _, mine := range candidate.Scope {
			for _, theirs := range other.Scope {
				if a.overlaps(mine, theirs) {
					shared = append(shared, mine)
					break
				}
			}
		}
		if len(shared) > 0 {
			shared, _ = dedupeSorted(shared)
			conflicts = append(conflicts, Conflict{TaskID: other.ID, Resources: shared})
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].TaskID < conflicts[j].TaskID })
	return conflicts
}

func (a ConflictAnalyzer) shareScope(x, y Task) bool {
	for _, mine := range x.Scope {
		for _, theirs := range y.Scope {
			if a.overlaps(mine, theirs) {
				return true
			}
		}
	}
	return false
}

func (a ConflictAnalyzer) overlaps(x, y string) bool {
	if x == y {
		return true
	}
	if a.Mode != MatchPattern {
		return false
	}
	return patternCovers(x, y) || patternCovers(y, x)
}

// patternCovers reports whether pattern p matches resource r. Supported forms
// are path.Match globs, "dir/" and "dir/**".
func patternCovers(p, r string) bool {
	if prefix, ok := strings.CutSuffix(p, "/**"); ok {
		return r == prefix || strings.HasPrefix(r, prefix+"/")
	}
	if strings.HasSuffix(p, "/") {
		return strings.HasPrefix(r, p) || r+"/" == p
	}
	if strings.ContainsAny(p, "*?[") {
		ok, err := path.Match(p, r)
		return err == nil && ok
	}
	return false
}

// ScopeImpact lists, in ID order, the tasks whose scope references the given
// resource: an entry containing the pattern or contained in it.
func ScopeImpact(g *Graph, pattern string) []string {
	pattern = strings.TrimSpace(pattern)
	impacted := []string{}
	if pattern == "" {
		return impacted
	}
	for _, id := range g.ids {
		for _, entry := range g.tasks[id].Scope {
			if strings.Contains(entry, pattern) || strings.Contains(pattern, entry) {
				impacted = append(impacted, id)
				break
			}
		}
	}
	return impacted
}
