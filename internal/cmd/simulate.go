package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aristath/taskgraph/internal/events"
	"github.com/aristath/taskgraph/internal/runner"
	"github.com/aristath/taskgraph/internal/scheduler"
)

func newSimulateCommand(a *app) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the plan with a no-op handler and report the batches",
		Long: `Simulate drives every open task through the runner in memory, completing
each one immediately. Nothing is written back to task files or the database.
The report shows the batches in the order they would run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.loadStore(ctx)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.cfg.Concurrency
			}

			bus := events.NewBus()
			progress := bus.Subscribe(events.TopicRun, 0)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for ev := range progress {
					if p, ok := ev.(events.RunProgressEvent); ok {
						a.logger.Info("batch finished", "batch", p.Batch, "done", p.Done, "remaining", p.Remaining)
					}
				}
			}()

			r := runner.New(st, func(context.Context, scheduler.Task) error { return nil },
				runner.WithConcurrency(concurrency),
				runner.WithRetry(a.cfg.Retry),
				runner.WithBus(bus),
				runner.WithLogger(a.logger),
			)
			report, err := r.Run(ctx)
			bus.Close()
			<-done
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum tasks in flight (default from config)")
	return cmd
}
