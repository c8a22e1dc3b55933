package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskgraph/internal/events"
	"github.com/aristath/taskgraph/internal/scheduler"
)

func task(id string, deps ...string) scheduler.Task {
	return scheduler.Task{ID: id, Status: scheduler.StatusTodo, DependsOn: deps}
}

type sliceSource struct {
	tasks []scheduler.Task
	err   error
}

func (s sliceSource) Load(context.Context) ([]scheduler.Task, error) {
	return s.tasks, s.err
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestStore_LoadRejectsStructuralErrors(t *testing.T) {
	s := New()
	require.NoError(t, s.Load([]scheduler.Task{task("A"), task("B", "A")}))

	err := s.Load([]scheduler.Task{task("A"), task("A")})
	require.ErrorIs(t, err, scheduler.ErrDuplicateID)

	err = s.Load([]scheduler.Task{task("A", "ghost")})
	require.ErrorIs(t, err, scheduler.ErrUnknownDependency)

	// Previous snapshot survives
	assert.Equal(t, []string{"A", "B"}, s.Graph().IDs())
}

func TestStore_LoadFrom(t *testing.T) {
	s := New()
	require.NoError(t, s.LoadFrom(context.Background(), sliceSource{tasks: []scheduler.Task{task("A")}}))
	assert.Equal(t, 1, s.Graph().Len())

	boom := errors.New("boom")
	err := s.LoadFrom(context.Background(), sliceSource{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestStore_UpdateStatusReportsReadinessChanges(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ch := bus.Subscribe(events.TopicTask, 16)

	s := New(WithBus(bus), WithClock(fixedClock()))
	require.NoError(t, s.Load([]scheduler.Task{task("A"), task("B", "A"), task("C", "A"), task("D", "A", "B")}))

	ready, err := scheduler.ReadyTasks(s.Graph())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ready)

	tr, err := s.UpdateStatus("A", scheduler.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusTodo, tr.From)
	assert.Equal(t, scheduler.StatusDone, tr.To)
	assert.Equal(t, []string{"B", "C"}, tr.Unblocked)
	assert.Empty(t, tr.Reblocked)

	ready, err = scheduler.ReadyTasks(s.Graph())
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, ready)

	got, err := s.Get("A")
	require.NoError(t, err)
	assert.Equal(t, fixedClock()(), got.UpdatedAt)

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).EventType())
	}
	assert.Equal(t, []string{
		events.EventTypeStatusChanged,
		events.EventTypeTaskReady,
		events.EventTypeTaskReady,
	}, types)
}

func TestStore_UpdateStatusReblocks(t *testing.T) {
	s := New()
	require.NoError(t, s.Load([]scheduler.Task{
		{ID: "A", Status: scheduler.StatusInProgress},
		task("B", "A"),
	}))

	tr, err := s.UpdateStatus("A", scheduler.StatusTodo)
	require.NoError(t, err)
	assert.Empty(t, tr.Unblocked)
	assert.Empty(t, tr.Reblocked)

	_, err = s.UpdateStatus("A", scheduler.StatusDone)
	require.NoError(t, err)
	assert.True(t, s.Graph().IsReady("B"))
}

func TestStore_UpdateStatusRejectsTerminal(t *testing.T) {
	s := New()
	require.NoError(t, s.Load([]scheduler.Task{{ID: "A", Status: scheduler.StatusDone}}))

	_, err := s.UpdateStatus("A", scheduler.StatusTodo)
	require.ErrorIs(t, err, scheduler.ErrInvalidTransition)

	var te *scheduler.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "A", te.TaskID)

	_, err = s.UpdateStatus("missing", scheduler.StatusDone)
	assert.ErrorIs(t, err, scheduler.ErrTaskNotFound)
}

func TestStore_UpsertKeepsCreatedAt(t *testing.T) {
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(fixedClock()))

	first := task("A")
	first.CreatedAt = created
	require.NoError(t, s.Upsert(first))

	second := task("A")
	second.Scope = []string{"main.go"}
	require.NoError(t, s.Upsert(second))

	got, err := s.Get("A")
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, fixedClock()(), got.UpdatedAt)
	assert.Equal(t, []string{"main.go"}, got.Scope)

	err = s.Upsert(task("B", "ghost"))
	require.ErrorIs(t, err, scheduler.ErrUnknownDependency)
	_, err = s.Get("B")
	assert.ErrorIs(t, err, scheduler.ErrTaskNotFound)

	assert.ErrorIs(t, s.Upsert(scheduler.Task{}), scheduler.ErrMissingID)
}

func TestStore_RemoveRejectsDanglingDependents(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ch := bus.Subscribe(events.TopicTask, 4)

	s := New(WithBus(bus))
	require.NoError(t, s.Load([]scheduler.Task{task("A"), task("B", "A")}))

	err := s.Remove("A")
	require.ErrorIs(t, err, scheduler.ErrUnknownDependency)
	assert.Equal(t, 2, s.Graph().Len())

	require.NoError(t, s.Remove("B"))
	require.NoError(t, s.Remove("A"))
	assert.Equal(t, 0, s.Graph().Len())

	assert.ErrorIs(t, s.Remove("A"), scheduler.ErrTaskNotFound)
	require.Len(t, ch, 2)
	assert.Equal(t, "B", (<-ch).TaskID())
}

func TestStore_CyclesSurfaceThroughQueries(t *testing.T) {
	s := New()
	require.NoError(t, s.Load([]scheduler.Task{task("A", "B"), task("B", "A")}))

	_, err := scheduler.ReadyTasks(s.Graph())
	assert.ErrorIs(t, err, scheduler.ErrCyclicDependency)
}

func TestStore_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	s := New()
	require.NoError(t, s.Load([]scheduler.Task{task("A"), task("B", "A"), task("C", "B")}))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				g := s.Graph()
				ready, err := scheduler.ReadyTasks(g)
				if err != nil || len(ready) > 1 {
					t.Errorf("inconsistent snapshot: %v %v", ready, err)
					return
				}
			}
		}()
	}

	for _, id := range []string{"A", "B", "C"} {
		_, err := s.UpdateStatus(id, scheduler.StatusInProgress)
		require.NoError(t, err)
		_, err = s.UpdateStatus(id, scheduler.StatusDone)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	ready, err := scheduler.ReadyTasks(s.Graph())
	require.NoError(t, err)
	assert.Empty(t, ready)
}
