package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/taskgraph/internal/events"
	"github.com/aristath/taskgraph/internal/scheduler"
	"github.com/aristath/taskgraph/internal/store"
	"github.com/aristath/taskgraph/internal/taskfile"
)

var errNoDatabase = errors.New("no database configured (use --db or the database config key)")

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change a task's status in the database",
		Long: `Status applies a status transition to a task stored in the database and
records it in the task's history. The output lists the dependents that became
ready or stopped being ready as a result.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			to, err := scheduler.ParseStatus(args[1])
			if err != nil {
				return err
			}

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			if db == nil {
				return errNoDatabase
			}
			defer db.Close()

			bus := events.NewBus()
			defer bus.Close()
			taskEvents := bus.Subscribe(events.TopicTask, 0)

			st := store.New(store.WithLogger(a.logger), store.WithBus(bus))
			if err := st.LoadFrom(ctx, db); err != nil {
				return err
			}
			tr, err := st.UpdateStatus(args[0], to)
			if err != nil {
				return err
			}
			if err := db.UpdateTaskStatus(ctx, args[0], to); err != nil {
				return fmt.Errorf("persist status of %q: %w", args[0], err)
			}
			logTaskEvents(a, taskEvents)
			return writeJSON(cmd.OutOrStdout(), tr)
		},
	}
}

// logTaskEvents drains already published task events into the log.
func logTaskEvents(a *app, ch <-chan events.Event) {
	for {
		select {
		case ev := <-ch:
			a.logger.Info("task event", "type", ev.EventType(), "task", ev.TaskID())
		default:
			return
		}
	}
}

// importResult is the output of the import command.
type importResult struct {
	Imported int    `json:"imported"`
	Database string `json:"database"`
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Copy task files into the database",
		Long: `Import reads every task file under the task directory, checks that the
records form a valid graph and writes them to the database in one transaction.
Existing records with the same ID are replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tasks, err := taskfile.LoadDir(ctx, a.cfg.TaskDir)
			if err != nil {
				return err
			}
			if _, err := scheduler.Build(tasks); err != nil {
				return err
			}

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			if db == nil {
				return errNoDatabase
			}
			defer db.Close()

			if err := db.SaveTasks(ctx, tasks); err != nil {
				return err
			}
			a.logger.Info("tasks imported", "tasks", len(tasks), "database", a.cfg.Database)
			return writeJSON(cmd.OutOrStdout(), importResult{Imported: len(tasks), Database: a.cfg.Database})
		},
	}
}
