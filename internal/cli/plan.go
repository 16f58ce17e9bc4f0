package cli

import (
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/report"
	"github.com/ZanzyTHEbar/critpath/internal/scheduler"
)

func newPlanCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <file>",
		Short: "Print the schedule, critical path and parallel waves of a task file",
		Long: `Plan validates a task file and prints, for every task, its earliest and
latest start and finish under unlimited parallelism together with its slack.
Tasks without slack form the critical path. Nothing is executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			records, err := o.load(path)
			if err != nil {
				return err
			}

			s, err := scheduler.New(scheduler.WithLogger(o.logger))
			if err != nil {
				return err
			}
			defer s.Close()

			p := report.New(cmd.OutOrStdout())
			analysis, err := s.Plan(cmd.Context(), records)
			if err != nil {
				p.Problems(path, err)
				return err
			}
			p.Plan(analysis)
			p.Estimate(path, critpath.ModeParallel, analysis)
			return nil
		},
	}
}
