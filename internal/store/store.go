// Package store holds the mutable task records and publishes immutable graph
// snapshots built from them.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aristath/taskgraph/internal/events"
	"github.com/aristath/taskgraph/internal/scheduler"
)

// Source supplies a full set of task records, e.g. a directory of task files
// or a database.
type Source interface {
	Load(ctx context.Context) ([]scheduler.Task, error)
}

// Transition describes an applied status change and its effect on the
// readiness of the task's direct dependents.
type Transition struct {
	ID        string           `json:"id"`
	From      scheduler.Status `json:"from"`
	To        scheduler.Status `json:"to"`
	Unblocked []string         `json:"unblocked"` // dependents that became ready
	Reblocked []string         `json:"reblocked"` // dependents that stopped being ready
}

// Option configures a Store.
type Option func(*Store)

// WithBus publishes store events on bus.
func WithBus(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for build warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store is the single writer of task records. Every mutation builds a new
// graph under the write lock and swaps it in only on success, so readers
// always see a complete snapshot.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]scheduler.Task
	graph  *scheduler.Graph
	bus    *events.Bus
	now    func() time.Time
	logger *slog.Logger
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		tasks:  make(map[string]scheduler.Task),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Build of an empty set cannot fail
	s.graph, _ = scheduler.Build(nil)
	return s
}

// Load replaces every record with tasks. On a structural error nothing changes.
func (s *Store) Load(tasks []scheduler.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]scheduler.Task, len(tasks))
	for _, t := range tasks {
		next[t.ID] = t.Clone()
	}
	// Build from the slice, not the map, so duplicate IDs are reported
	g, err := scheduler.Build(tasks)
	if err != nil {
		return err
	}
	s.install(next, g)
	return nil
}

// LoadFrom reads every record from src and loads it.
func (s *Store) LoadFrom(ctx context.Context, src Source) error {
	tasks, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	return s.Load(tasks)
}

// Graph returns the current snapshot.
func (s *Store) Graph() *scheduler.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (scheduler.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return scheduler.Task{}, fmt.Errorf("%w: %q", scheduler.ErrTaskNotFound, id)
	}
	return t.Clone(), nil
}

// Tasks returns copies of all records ordered by ID.
func (s *Store) Tasks() []scheduler.Task {
	return s.Graph().Tasks()
}

// Upsert inserts or replaces a record. New records get CreatedAt stamped;
// an existing record keeps its original CreatedAt.
func (s *Store) Upsert(task scheduler.Task) error {
	if task.ID == "" {
		return scheduler.ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	task = task.Clone()
	if prev, ok := s.tasks[task.ID]; ok && !prev.CreatedAt.IsZero() {
		task.CreatedAt = prev.CreatedAt
	} else if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	next := s.copyTasks()
	next[task.ID] = task
	g, err := scheduler.Build(values(next))
	if err != nil {
		return err
	}
	s.install(next, g)
	return nil
}

// Remove deletes a record. Removing a task that others still depend on is a
// structural error and leaves the store unchanged.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("%w: %q", scheduler.ErrTaskNotFound, id)
	}

	next := s.copyTasks()
	delete(next, id)
	g, err := scheduler.Build(values(next))
	if err != nil {
		return fmt.Errorf("remove %q: %w", id, err)
	}
	s.install(next, g)
	s.bus.Publish(events.TaskRemovedEvent{ID: id, Timestamp: s.now()})
	return nil
}

// UpdateStatus applies a status transition and rebuilds the graph. The
// returned Transition lists the direct dependents whose readiness changed.
func (s *Store) UpdateStatus(id string, to scheduler.Status) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %q", scheduler.ErrTaskNotFound, id)
	}
	if err := scheduler.ValidateTransition(task.Status, to); err != nil {
		var te *scheduler.InvalidTransitionError
		if errors.As(err, &te) {
			te.TaskID = id
		}
		return Transition{}, err
	}

	tr := Transition{ID: id, From: task.Status, To: to, Unblocked: []string{}, Reblocked: []string{}}
	if task.Status == to {
		return tr, nil
	}

	prev := s.graph
	task = task.Clone()
	task.Status = to
	task.UpdatedAt = s.now()

	next := s.copyTasks()
	next[id] = task
	g, err := scheduler.Build(values(next))
	if err != nil {
		return Transition{}, err
	}

	for _, dep := range g.Dependents(id) {
		was, is := prev.IsReady(dep), g.IsReady(dep)
		switch {
		case is && !was:
			tr.Unblocked = append(tr.Unblocked, dep)
		case was && !is:
			tr.Reblocked = append(tr.Reblocked, dep)
		}
	}

	s.install(next, g)

	ts := s.now()
	s.bus.Publish(events.StatusChangedEvent{ID: id, From: tr.From.String(), To: to.String(), Timestamp: ts})
	for _, dep := range tr.Unblocked {
		s.bus.Publish(events.TaskReadyEvent{ID: dep, UnlockedBy: id, Timestamp: ts})
	}
	s.logger.Debug("status updated", "task", id, "from", tr.From.String(), "to", to.String(),
		"unblocked", len(tr.Unblocked), "reblocked", len(tr.Reblocked))
	return tr, nil
}

// install swaps in a new record set and snapshot. Caller holds s.mu.
func (s *Store) install(tasks map[string]scheduler.Task, g *scheduler.Graph) {
	s.tasks = tasks
	s.graph = g

	for _, w := range g.Warnings() {
		s.logger.Warn("task graph warning", "kind", string(w.Kind), "task", w.TaskID, "related", w.Related)
	}

	ready := 0
	if g.Validate() == nil {
		for _, id := range g.IDs() {
			if g.IsReady(id) {
				ready++
			}
		}
	}
	s.bus.Publish(events.GraphRebuiltEvent{
		Tasks:     g.Len(),
		Ready:     ready,
		Cycles:    len(g.Cycles()),
		Warnings:  len(g.Warnings()),
		Timestamp: s.now(),
	})
}

func (s *Store) copyTasks() map[string]scheduler.Task {
	next := make(map[string]scheduler.Task, len(s.tasks)+1)
	for id, t := range s.tasks {
		next[id] = t
	}
	return next
}

// values returns the records in ID order so builds are deterministic.
func values(tasks map[string]scheduler.Task) []scheduler.Task {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]scheduler.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, tasks[id])
	}
	return out
}
