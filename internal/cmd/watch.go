package cmd

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/taskgraph/internal/events"
	"github.com/aristath/taskgraph/internal/scheduler"
	"github.com/aristath/taskgraph/internal/store"
	"github.com/aristath/taskgraph/internal/taskfile"
)

// snapshot is one line of watch output.
type snapshot struct {
	Tasks int          `json:"tasks"`
	Ready []string     `json:"ready"`
	Error *errorReport `json:"error,omitempty"`
}

func newWatchCommand(a *app) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the ready set every time the task files change",
		Long: `Watch loads the task directory, prints the ready set as one JSON line and
then prints a new line whenever task files are created, edited or removed.
A reload that hits a structural problem prints the error object and keeps the
previous graph. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			bus := events.NewBus()
			defer bus.Close()
			rebuilt := bus.Subscribe(events.TopicGraph, 0)

			st := store.New(store.WithLogger(a.logger), store.WithBus(bus))
			reload := func() error {
				return a.reload(ctx, st, out, rebuilt)
			}
			if err := reload(); err != nil {
				return err
			}

			return taskfile.Watch(ctx, a.cfg.TaskDir, debounce, func() {
				if err := reload(); err != nil {
					a.logger.Error("reload failed", "error", err)
				}
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", taskfile.DefaultDebounce, "quiet period before reloading")
	return cmd
}

// reload reads the task directory into st and prints a snapshot line.
// Structural problems are printed rather than returned.
func (a *app) reload(ctx context.Context, st *store.Store, out io.Writer, rebuilt <-chan events.Event) error {
	tasks, err := taskfile.LoadDir(ctx, a.cfg.TaskDir)
	if err == nil {
		err = st.Load(tasks)
	}
	if err != nil {
		report, ok := structuralReport(err)
		if !ok {
			return err
		}
		return writeLine(out, snapshot{Tasks: st.Graph().Len(), Ready: []string{}, Error: &report})
	}

	for drained := false; !drained; {
		select {
		case ev := <-rebuilt:
			if r, ok := ev.(events.GraphRebuiltEvent); ok {
				a.logger.Debug("graph rebuilt", "tasks", r.Tasks, "ready", r.Ready, "cycles", r.Cycles)
			}
		default:
			drained = true
		}
	}

	snap := snapshot{Tasks: st.Graph().Len(), Ready: []string{}}
	ready, err := scheduler.ReadyTasks(st.Graph())
	if err != nil {
		report, _ := structuralReport(err)
		snap.Error = &report
	} else {
		snap.Ready = nonNil(ready)
	}
	return writeLine(out, snap)
}
