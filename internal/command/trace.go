package command

import (
	"fmt"

	"github.com/fredsys/fred/datarecording"
	"github.com/fredsys/fred/tracing"
	"github.com/spf13/cobra"
)

func newTraceCommand() *cobra.Command {
	var filter tracing.ExecutionFilter

	cmd := &cobra.Command{
		Use:   "trace <file.sqlite3>",
		Short: "Print the executions recorded by a simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			reader, err := datarecording.NewReader(args[0])
			if err != nil {
				return err
			}
			defer reader.Close()

			execs, total, err := tracing.ReadExecutions(c.Context(), reader, filter)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			out := c.OutOrStdout()
			tracing.PrintExecutions(out, execs)
			fmt.Fprintf(out, "%d of %d executions\n", len(execs), total)

			return nil
		},
	}

	cmd.Flags().StringVar(&filter.HwTask, "hw-task", "", "only show executions of this hw-task")
	cmd.Flags().BoolVar(&filter.Overruns, "overruns", false, "only show executions that overran")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of executions to show, 0 for all")

	return cmd
}
