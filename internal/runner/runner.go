// Package runner executes a task graph: it repeatedly takes the ready set from
// the store, runs it through a Handler with bounded concurrency and records
// the outcome as status transitions.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskgraph/internal/config"
	"github.com/aristath/taskgraph/internal/events"
	"github.com/aristath/taskgraph/internal/scheduler"
	"github.com/aristath/taskgraph/internal/store"
)

// Handler performs the work of a single task. A nil error marks the task
// Done; any other error is retried and finally marks it Blocked. Wrap an error
// with Permanent to skip the remaining retries.
type Handler func(ctx context.Context, task scheduler.Task) error

// Result represents the outcome of one task execution.
type Result struct {
	ID       string           `json:"id"`
	Status   scheduler.Status `json:"status"`
	Attempts int              `json:"attempts"`
	Error    string           `json:"error,omitempty"`
	Err      error            `json:"-"`
}

// Report summarises a run.
type Report struct {
	Batches   [][]string `json:"batches"`
	Results   []Result   `json:"results"`
	Remaining []string   `json:"remaining"` // non-terminal tasks left when the run stopped
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets the maximum number of handlers running at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

// WithRetry sets the retry and circuit breaker policy.
func WithRetry(cfg config.RetryConfig) Option {
	return func(r *Runner) { r.retry = cfg }
}

// WithLocks shares a scope lock table with other runners.
func WithLocks(locks *scheduler.ScopeLocks) Option {
	return func(r *Runner) { r.locks = locks }
}

// WithBus publishes run progress on bus.
func WithBus(bus *events.Bus) Option {
	return func(r *Runner) { r.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// Runner drives the tasks of a store to completion.
type Runner struct {
	store       *store.Store
	handler     Handler
	concurrency int
	retry       config.RetryConfig
	locks       *scheduler.ScopeLocks
	bus         *events.Bus
	logger      *slog.Logger
	breaker     *gobreaker.CircuitBreaker

	mu      sync.Mutex
	results map[string]Result
}

// New creates a runner over st.
func New(st *store.Store, h Handler, opts ...Option) *Runner {
	r := &Runner{
		store:       st,
		handler:     h,
		concurrency: 4,
		retry:       config.DefaultRetryConfig(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency <= 0 {
		r.concurrency = 4
	}
	if r.locks == nil {
		r.locks = scheduler.NewScopeLocks()
	}
	r.breaker = newBreaker(r.retry, r.logger)
	return r
}

// Run executes batches of ready tasks until none remain. It stops early with
// the context error when ctx is cancelled, and with the structural error when
// the graph cannot be scheduled. The report is valid in both cases.
// Run must not be called concurrently on the same Runner.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{Batches: [][]string{}}
	r.mu.Lock()
	r.results = make(map[string]Result)
	r.mu.Unlock()

	// A task is attempted at most once per run
	attempted := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return r.finish(report), err
		}

		candidates, err := scheduler.ReadyTasks(r.store.Graph())
		if err != nil {
			return r.finish(report), err
		}
		var ready []string
		for _, id := range candidates {
			if !attempted[id] {
				attempted[id] = true
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			break
		}
		report.Batches = append(report.Batches, ready)
		r.logger.Debug("starting batch", "batch", len(report.Batches), "tasks", ready)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, id := range ready {
			g.Go(func() error {
				r.executeTask(gctx, id)
				// Task errors are tracked as statuses, not returned here
				return nil
			})
		}
		_ = g.Wait()

		r.publishProgress(len(report.Batches))
	}

	return r.finish(report), nil
}

// executeTask runs one task while holding the locks on its scope.
func (r *Runner) executeTask(ctx context.Context, id string) {
	task, err := r.store.Get(id)
	if err != nil {
		r.recordResult(Result{ID: id, Err: err})
		return
	}

	unlock := r.locks.LockAll(task.Scope)
	defer unlock()

	if _, err := r.store.UpdateStatus(id, scheduler.StatusInProgress); err != nil {
		r.logger.Error("failed to mark task in progress", "task", id, "error", err)
		r.recordResult(Result{ID: id, Status: task.Status, Err: err})
		return
	}
	task.Status = scheduler.StatusInProgress

	attempts, err := callWithRetry(ctx, r.handler, task, r.breaker, r.retry)

	final := scheduler.StatusDone
	switch {
	case err == nil:
	case ctx.Err() != nil:
		// Interrupted work goes back to the queue
		final = scheduler.StatusTodo
	default:
		final = scheduler.StatusBlocked
		r.logger.Warn("task failed", "task", id, "attempts", attempts, "error", err)
	}

	if _, uerr := r.store.UpdateStatus(id, final); uerr != nil {
		err = errors.Join(err, fmt.Errorf("record status of %q: %w", id, uerr))
		final = scheduler.StatusInProgress
	}
	r.recordResult(Result{ID: id, Status: final, Attempts: attempts, Err: err})
}

// recordResult appends a task result in a thread-safe manner.
func (r *Runner) recordResult(res Result) {
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[res.ID] = res
}

func (r *Runner) publishProgress(batch int) {
	ev := events.RunProgressEvent{Batch: batch, Timestamp: time.Now()}
	for _, t := range r.store.Tasks() {
		ev.Total++
		switch t.Status {
		case scheduler.StatusDone:
			ev.Done++
		case scheduler.StatusInProgress:
			ev.Running++
		case scheduler.StatusBlocked:
			ev.Blocked++
		}
		if !t.Status.IsTerminal() {
			ev.Remaining++
		}
	}
	r.bus.Publish(ev)
}

// finish fills in results, in batch order, and the remaining set.
func (r *Runner) finish(report Report) Report {
	r.mu.Lock()
	report.Results = []Result{}
	for _, batch := range report.Batches {
		for _, id := range batch {
			if res, ok := r.results[id]; ok {
				report.Results = append(report.Results, res)
			}
		}
	}
	r.mu.Unlock()

	report.Remaining = []string{}
	for _, t := range r.store.Tasks() {
		if !t.Status.IsTerminal() {
			report.Remaining = append(report.Remaining, t.ID)
		}
	}
	sort.Strings(report.Remaining)
	return report
}
