package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/taskgraph/internal/scheduler"
)

func newGraphCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the dependency graph as Graphviz DOT or tsort input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			write := scheduler.WriteDOT
			switch format {
			case "dot":
			case "tsort":
				write = scheduler.WriteTSort
			default:
				return fmt.Errorf("unknown format %q (want dot or tsort)", format)
			}

			st, err := a.loadStore(cmd.Context())
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), st.Graph())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format: dot or tsort")
	return cmd
}
