package scheduler

import (
	"bytes"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prioritized(t Task, p Priority) Task {
	t.Priority = p
	return t
}

func scoped(t Task, s Status, scope ...string) Task {
	t.Status = s
	t.Scope = scope
	return t
}

func TestReadyTasks_FanOut(t *testing.T) {
	g := mustBuild(t, todo("A"), todo("B", "A"), todo("C", "A"))

	ready, err := ReadyTasks(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ready)
}

func TestReadyTasks_CompletionUnblocksDependents(t *testing.T) {
	g := mustBuild(t,
		withStatus(todo("A"), StatusDone),
		todo("C", "A"),
		prioritized(todo("B", "A"), PriorityLow),
		prioritized(todo("D", "A"), PriorityCritical),
	)

	ready, err := ReadyTasks(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "C", "B"}, ready)

	layers, err := Layers(g)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A"}, {"D", "C", "B"}}, layers)

	waves, err := ExecutionWaves(g)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"D", "C", "B"}}, waves, "done tasks are not part of the remaining work")
}

func TestFindCycles_TwoTaskCycleBlocksQueries(t *testing.T) {
	g := mustBuild(t, todo("A", "B"), todo("B", "A"))

	cycles := FindCycles(g)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"A", "B"}, cycles[0])

	_, err := ReadyTasks(g)
	require.ErrorIs(t, err, ErrCyclicDependency)

	var cycErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycErr)
	assert.Equal(t, []Cycle{{"A", "B"}}, cycErr.Cycles)

	_, err = CriticalPath(g)
	assert.ErrorIs(t, err, ErrCyclicDependency)
	_, err = ExecutionWaves(g)
	assert.ErrorIs(t, err, ErrCyclicDependency)
	_, err = Bottlenecks(g, 3)
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestConflicts_SharedScopeEntry(t *testing.T) {
	x := scoped(todo("X"), StatusTodo, "file.rs")
	y := scoped(todo("Y"), StatusInProgress, "file.rs", "other.rs")

	assert.Equal(t, []string{"Y"}, Conflicts(x, []Task{y}))
}

func TestCriticalPath_LinearChain(t *testing.T) {
	g := mustBuild(t, todo("D", "C"), todo("C", "B"), todo("B", "A"), todo("A"))

	path, err := CriticalPath(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, path)
}

func TestReadyTasks_CancelledDependencyNeverReady(t *testing.T) {
	g := mustBuild(t,
		withStatus(todo("A"), StatusCancelled),
		withStatus(todo("B"), StatusDone),
		todo("C", "A", "B"),
		todo("D", "C"),
		todo("E", "B"),
	)

	ready, err := ReadyTasks(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"E"}, ready)
	assert.Equal(t, []string{"A"}, g.UnmetDependencies("C"))

	stranded, err := Stranded(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "D"}, stranded)

	waves, err := ExecutionWaves(g)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"E"}}, waves)
}

func TestReadyTasks_IgnoresBlocksAndNonTodo(t *testing.T) {
	a := todo("A")
	a.Blocks = []string{"B"}
	b := todo("B") // declared as blocked by A, but does not depend on it

	g := mustBuild(t,
		a, b,
		withStatus(todo("C"), StatusInProgress),
		withStatus(todo("D"), StatusBlocked),
		withStatus(todo("E"), StatusDone),
	)

	ready, err := ReadyTasks(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ready)
}

func TestFindCycles_ReportsEveryBackEdge(t *testing.T) {
	// Two independent loops plus a self-dependency
	g := mustBuild(t,
		todo("A", "B"), todo("B", "A"),
		todo("C", "D"), todo("D", "E"), todo("E", "C"),
		todo("F", "F"),
		todo("G", "A"),
	)

	cycles := FindCycles(g)
	assert.Equal(t, []Cycle{{"A", "B"}, {"C", "D", "E"}, {"F"}}, cycles)
	assert.Equal(t, "C -> D -> E -> C", cycles[1].String())
}

func TestFindCycles_EmptyForDAG(t *testing.T) {
	g := mustBuild(t, todo("A"), todo("B", "A"), todo("C", "A", "B"))
	assert.Empty(t, FindCycles(g))
	assert.NoError(t, g.Validate())
}

func TestConflictAnalyzer(t *testing.T) {
	running := []Task{
		scoped(todo("R1"), StatusInProgress, "src/api/handler.go"),
		scoped(todo("R2"), StatusInProgress, "docs/readme.md", "src/db/"),
		scoped(todo("R3"), StatusTodo, "src/api/handler.go"), // not running
		scoped(todo("cand"), StatusInProgress, "src/api/handler.go"),
	}

	tests := []struct {
		name      string
		mode      MatchMode
		candidate Task
		want      []string
	}{
		{
			name:      "exact match",
			mode:      MatchExact,
			candidate: scoped(todo("cand"), StatusTodo, "src/api/handler.go"),
			want:      []string{"R1"},
		},
		{
			name:      "exact mode ignores prefixes",
			mode:      MatchExact,
			candidate: scoped(todo("cand"), StatusTodo, "src/db/conn.go"),
			want:      []string{},
		},
		{
			name:      "pattern mode directory prefix",
			mode:      MatchPattern,
			candidate: scoped(todo("cand"), StatusTodo, "src/db/conn.go"),
			want:      []string{"R2"},
		},
		{
			name:      "pattern mode glob",
			mode:      MatchPattern,
			candidate: scoped(todo("cand"), StatusTodo, "src/api/*.go"),
			want:      []string{"R1"},
		},
		{
			name:      "pattern mode double star",
			mode:      MatchPattern,
			candidate: scoped(todo("cand"), StatusTodo, "src/**"),
			want:      []string{"R1", "R2"},
		},
		{
			name:      "empty scope",
			mode:      MatchPattern,
			candidate: todo("cand"),
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConflictAnalyzer{Mode: tt.mode}.Conflicts(tt.candidate, running)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConflictAnalyzer_Details(t *testing.T) {
	candidate := scoped(todo("X"), StatusTodo, "b.go", "a.go", "c.go")
	running := []Task{
		scoped(todo("Z"), StatusInProgress, "c.go"),
		scoped(todo("Y"), StatusInProgress, "a.go", "b.go"),
	}

	got := ConflictAnalyzer{}.Details(candidate, running)
	assert.Equal(t, []Conflict{
		{TaskID: "Y", Resources: []string{"a.go", "b.go"}},
		{TaskID: "Z", Resources: []string{"c.go"}},
	}, got)
}

func TestScopeImpact(t *testing.T) {
	g := mustBuild(t,
		scoped(todo("A"), StatusTodo, "internal/store/store.go"),
		scoped(todo("B"), StatusTodo, "internal/"),
		scoped(todo("C"), StatusTodo, "cmd/main.go"),
	)

	assert.Equal(t, []string{"A", "B"}, ScopeImpact(g, "internal/store"))
	assert.Equal(t, []string{}, ScopeImpact(g, "  "))
}

func TestCriticalPath(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		want  []string
	}{
		{
			name:  "empty graph",
			tasks: nil,
			want:  []string{},
		},
		{
			name:  "independent tasks pick smallest id",
			tasks: []Task{todo("B"), todo("A")},
			want:  []string{"A"},
		},
		{
			name:  "diamond prefers smaller branch",
			tasks: []Task{todo("A"), todo("C", "A"), todo("B", "A"), todo("D", "B", "C")},
			want:  []string{"A", "B", "D"},
		},
		{
			name: "longest branch wins over id order",
			tasks: []Task{
				todo("A"), todo("Z1", "A"), todo("Z2", "Z1"), todo("Z3", "Z2"),
				todo("B", "A"), todo("M", "B", "Z3"),
			},
			want: []string{"A", "Z1", "Z2", "Z3", "M"},
		},
		{
			name:  "status does not shorten the path",
			tasks: []Task{withStatus(todo("A"), StatusDone), todo("B", "A")},
			want:  []string{"A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustBuild(t, tt.tasks...)
			got, err := CriticalPath(g)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBottlenecks(t *testing.T) {
	// A unlocks everything; B and C each unlock D
	g := mustBuild(t, todo("A"), todo("B", "A"), todo("C", "A"), todo("D", "B", "C"), todo("E"))

	all, err := Bottlenecks(g, 0)
	require.NoError(t, err)
	assert.Equal(t, []Bottleneck{
		{ID: "A", Descendants: 3},
		{ID: "B", Descendants: 1},
		{ID: "C", Descendants: 1},
		{ID: "D", Descendants: 0},
		{ID: "E", Descendants: 0},
	}, all)

	top, err := Bottlenecks(g, 2)
	require.NoError(t, err)
	assert.Equal(t, []Bottleneck{{ID: "A", Descendants: 3}, {ID: "B", Descendants: 1}}, top)
}

func TestExecutionWaves(t *testing.T) {
	g := mustBuild(t,
		withStatus(todo("A"), StatusDone),
		todo("B", "A"),
		prioritized(todo("C"), PriorityHigh),
		todo("D", "B", "C"),
		withStatus(todo("E", "D"), StatusInProgress),
		todo("F", "E"),
	)

	waves, err := ExecutionWaves(g)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"C", "B"}, {"D"}, {"E"}, {"F"}}, waves)
}

func TestExecutionWaves_OrderCarriesThroughDoneTasks(t *testing.T) {
	g := mustBuild(t,
		todo("A"),
		withStatus(todo("B", "A"), StatusDone),
		todo("C", "B"),
	)

	waves, err := ExecutionWaves(g)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A"}, {"C"}}, waves)

	// Several Done hops still order C after A
	g = mustBuild(t,
		todo("A"),
		withStatus(todo("B1", "A"), StatusDone),
		withStatus(todo("B2", "B1"), StatusDone),
		todo("C", "B2"),
		todo("D"),
	)
	waves, err = ExecutionWaves(g)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A", "D"}, {"C"}}, waves)
}

func TestExport(t *testing.T) {
	g := mustBuild(t, todo("A"), withStatus(todo("B", "A"), StatusDone))

	var dot bytes.Buffer
	require.NoError(t, WriteDOT(&dot, g))
	assert.Contains(t, dot.String(), "digraph tasks {")
	assert.Contains(t, dot.String(), `"A" -> "B";`)
	assert.Contains(t, dot.String(), `"B" [label="B\nDone"];`)

	var ts bytes.Buffer
	require.NoError(t, WriteTSort(&ts, g))
	assert.Equal(t, "A A\nA B\n", ts.String())
}

// randomDAG builds an acyclic graph where each task may depend only on tasks
// with a smaller index.
func randomDAG(r *rand.Rand, n int) []Task {
	tasks := make([]Task, n)
	for i := range n {
		task := Task{ID: fmt.Sprintf("T%03d", i)}
		task.Priority = Priority(r.Intn(4))
		if r.Intn(3) == 0 {
			task.Status = StatusDone
		}
		for j := range i {
			if r.Intn(5) == 0 {
				task.DependsOn = append(task.DependsOn, tasks[j].ID)
			}
		}
		tasks[i] = task
	}
	r.Shuffle(n, func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
	return tasks
}

func TestRandomDAGs_QueryInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for round := range 50 {
		tasks := randomDAG(r, 5+r.Intn(40))
		g := mustBuild(t, tasks...)
		require.Empty(t, FindCycles(g), "round %d", round)

		ready, err := ReadyTasks(g)
		require.NoError(t, err)
		for _, id := range ready {
			for _, dep := range g.DependsOn(id) {
				task, _ := g.Task(dep)
				require.Equal(t, StatusDone, task.Status, "round %d: %s ready with unmet %s", round, id, dep)
			}
		}

		waves, err := ExecutionWaves(g)
		require.NoError(t, err)
		for _, wave := range waves {
			for _, x := range wave {
				ancestors := g.Ancestors(x)
				for _, y := range wave {
					require.False(t, slices.Contains(ancestors, y), "round %d: %s and %s share a wave", round, x, y)
				}
			}
		}

		bottlenecks, err := Bottlenecks(g, 0)
		require.NoError(t, err)
		seenZero := false
		for _, b := range bottlenecks {
			if b.Descendants == 0 {
				seenZero = true
				continue
			}
			require.False(t, seenZero, "round %d: positive score ranked below zero score", round)
		}

		// Determinism: a second build of the same records answers identically
		again := mustBuild(t, tasks...)
		ready2, _ := ReadyTasks(again)
		path1, _ := CriticalPath(g)
		path2, _ := CriticalPath(again)
		waves2, _ := ExecutionWaves(again)
		assert.Equal(t, ready, ready2)
		assert.Equal(t, path1, path2)
		assert.Equal(t, waves, waves2)
	}
}

func TestFindCycles_BreakingAnEdgeRemovesTheCycle(t *testing.T) {
	tasks := []Task{todo("A", "C"), todo("B", "A"), todo("C", "B"), todo("D", "C")}
	g := mustBuild(t, tasks...)

	cycles := FindCycles(g)
	require.Len(t, cycles, 1)
	cycle := cycles[0]
	require.ElementsMatch(t, []string{"A", "B", "C"}, []string(cycle))

	// Remove the edge cycle[0] -> cycle[1]
	var fixed []Task
	for _, task := range tasks {
		task = task.Clone()
		if task.ID == cycle[0] {
			task.DependsOn = slices.DeleteFunc(task.DependsOn, func(d string) bool { return d == cycle[1] })
		}
		fixed = append(fixed, task)
	}
	assert.Empty(t, FindCycles(mustBuild(t, fixed...)))
}
