package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aristath/taskgraph/internal/scheduler"
)

func newReadyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "List tasks that can start now, highest priority first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			ready, err := scheduler.ReadyTasks(st.Graph())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), nonNil(ready))
		},
	}
}

// validation is the output of the validate command.
type validation struct {
	Valid    bool                `json:"valid"`
	Tasks    int                 `json:"tasks"`
	Cycles   []scheduler.Cycle   `json:"cycles"`
	Warnings []scheduler.Warning `json:"warnings"`
}

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the task graph for structural problems and cycles",
		Long: `Validate builds the task graph and reports every cycle and advisory
warning. Missing or duplicate IDs and unknown dependencies are reported as a
JSON error object. Exits with status 2 when the graph cannot be scheduled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			g := st.Graph()
			out := validation{
				Valid:    g.Validate() == nil,
				Tasks:    g.Len(),
				Cycles:   g.Cycles(),
				Warnings: g.Warnings(),
			}
			if out.Cycles == nil {
				out.Cycles = []scheduler.Cycle{}
			}
			if out.Warnings == nil {
				out.Warnings = []scheduler.Warning{}
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !out.Valid {
				return &exitError{code: exitStructural}
			}
			return nil
		},
	}
}

func newConflictsCommand(a *app) *cobra.Command {
	var (
		pattern bool
		details bool
	)
	cmd := &cobra.Command{
		Use:   "conflicts <id>",
		Short: "List in-progress tasks whose scope overlaps the given task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			g := st.Graph()
			candidate, ok := g.Task(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", scheduler.ErrTaskNotFound, args[0])
			}

			mode, _ := scheduler.ParseMatchMode(a.cfg.ScopeMatching)
			if pattern {
				mode = scheduler.MatchPattern
			}
			analyzer := scheduler.ConflictAnalyzer{Mode: mode}
			if details {
				conflicts := analyzer.Details(candidate, g.InProgress())
				if conflicts == nil {
					conflicts = []scheduler.Conflict{}
				}
				return writeJSON(cmd.OutOrStdout(), conflicts)
			}
			return writeJSON(cmd.OutOrStdout(), nonNil(analyzer.Conflicts(candidate, g.InProgress())))
		},
	}
	cmd.Flags().BoolVar(&pattern, "pattern", false, "match scope entries as globs and directory prefixes")
	cmd.Flags().BoolVar(&details, "details", false, "include the shared resources for each conflict")
	return cmd
}

func newCriticalPathCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "critical-path",
		Short: "Print the longest dependency chain, root first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			path, err := scheduler.CriticalPath(st.Graph())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), nonNil(path))
		},
	}
}

func newBottlenecksCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bottlenecks [n]",
		Short: "Rank tasks by how many tasks transitively depend on them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := a.cfg.BottleneckLimit
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return fmt.Errorf("invalid count %q: must be a non-negative integer", args[0])
				}
				limit = n
			}

			st, err := a.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			ranked, err := scheduler.Bottlenecks(st.Graph(), limit)
			if err != nil {
				return err
			}
			if ranked == nil {
				ranked = []scheduler.Bottleneck{}
			}
			return writeJSON(cmd.OutOrStdout(), ranked)
		},
	}
}

func newWavesCommand(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "waves",
		Short: "Group remaining work into waves that can run in parallel",
		Long: `Waves groups the tasks that still need doing into ordered waves. Every task
in a wave depends only on Done tasks or tasks in earlier waves. With --all the
layering covers every task regardless of status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			plan := scheduler.ExecutionWaves
			if all {
				plan = scheduler.Layers
			}
			waves, err := plan(st.Graph())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), waves)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "layer every task, including Done and Cancelled ones")
	return cmd
}

func newStrandedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stranded",
		Short: "List open tasks that can never start because a dependency was cancelled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			stranded, err := scheduler.Stranded(st.Graph())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), nonNil(stranded))
		},
	}
}

func newScopeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scope <pattern>",
		Short: "List tasks whose scope touches a path or pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), scheduler.ScopeImpact(st.Graph(), args[0]))
		},
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
