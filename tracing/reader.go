package tracing

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fredsys/fred/datarecording"
)

// ExecutionFilter selects executions of a trace.
type ExecutionFilter struct {
	HwTask   string
	Overruns bool
	Limit    int
}

func (f ExecutionFilter) params() datarecording.QueryParams {
	var (
		conds []string
		args  []any
	)

	if f.HwTask != "" {
		conds = append(conds, "HwTask = ?")
		args = append(args, f.HwTask)
	}

	if f.Overruns {
		conds = append(conds, "Outcome = ?")
		args = append(args, OutcomeOverrun)
	}

	return datarecording.QueryParams{
		Where:   strings.Join(conds, " AND "),
		Args:    args,
		OrderBy: "Push, ID",
		Limit:   f.Limit,
	}
}

// ReadExecutions returns the executions of a trace in push order, and how
// many match the filter without its limit.
func ReadExecutions(
	ctx context.Context,
	reader datarecording.DataReader,
	filter ExecutionFilter,
) ([]Execution, int, error) {
	reader.MapTable(ExecutionTable, Execution{})

	rows, total, err := reader.Query(ctx, ExecutionTable, filter.params())
	if err != nil {
		return nil, 0, err
	}

	execs := make([]Execution, 0, len(rows))
	for _, row := range rows {
		execs = append(execs, *row.(*Execution))
	}

	return execs, total, nil
}

// PrintExecutions writes one line per execution.
func PrintExecutions(w io.Writer, execs []Execution) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "id\thw-task\tpartition\tslot\tpush\trcfg\texec\tresponse\toutcome")

	for _, e := range execs {
		rcfg := e.RcfgTime().String()
		if e.Skipped {
			rcfg = "skipped"
		}

		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.6f\t%s\t%s\t%s\t%s\n",
			e.ID, e.HwTask, e.Partition, e.Slot, e.Push,
			rcfg, e.ExecTime(), e.ResponseTime(), e.Outcome)
	}

	tw.Flush()
}
