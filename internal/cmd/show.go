package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/taskgraph/internal/persistence"
	"github.com/aristath/taskgraph/internal/scheduler"
)

// taskDetail is the output of the show command.
type taskDetail struct {
	Task        scheduler.Task             `json:"task"`
	Ready       bool                       `json:"ready"`
	Unmet       []string                   `json:"unmet_dependencies"`
	Dependents  []string                   `json:"dependents"`
	Ancestors   []string                   `json:"ancestors"`
	Descendants []string                   `json:"descendants"`
	History     []persistence.StatusChange `json:"history,omitempty"`
}

func newShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its position in the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.loadStore(ctx)
			if err != nil {
				return err
			}
			g := st.Graph()
			id := args[0]
			task, ok := g.Task(id)
			if !ok {
				return fmt.Errorf("%w: %q", scheduler.ErrTaskNotFound, id)
			}

			out := taskDetail{
				Task:        task,
				Ready:       g.IsReady(id),
				Unmet:       nonNil(g.UnmetDependencies(id)),
				Dependents:  nonNil(g.Dependents(id)),
				Ancestors:   nonNil(g.Ancestors(id)),
				Descendants: nonNil(g.Descendants(id)),
			}

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
				if out.History, err = db.History(ctx, id); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
