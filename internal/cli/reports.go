package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/store"
)

// ReportsOptions holds flags for the reports command.
type ReportsOptions struct {
	*RootOptions
	Model    string
	Dispatch string
	State    string
	After    int64
	Limit    int
}

var terminalStates = []ir.TerminalState{
	ir.StateCompleted,
	ir.StateAborted,
	ir.StateLoopLimitExceeded,
}

// NewReportsCommand creates the reports command.
func NewReportsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Query the invocation report log",
		Long: `Print stored invocation reports in execution order (by seq).

Examples:
  eca reports --db eca.db --model greet-on-login
  eca reports --state aborted --limit 20
  eca reports --after 1200 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReports(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Model, "model", "", "only reports of this model")
	cmd.Flags().StringVar(&opts.Dispatch, "dispatch", "", "only reports of this dispatch id")
	cmd.Flags().StringVar(&opts.State, "state", "", "only reports in this terminal state (completed|aborted|loop_limit_exceeded)")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only reports with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of reports (0 for all)")

	return cmd
}

func runReports(opts *ReportsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	filter := store.ReportFilter{
		ModelID:    opts.Model,
		DispatchID: opts.Dispatch,
		AfterSeq:   opts.After,
		Limit:      opts.Limit,
	}
	if opts.State != "" {
		state := ir.TerminalState(opts.State)
		if !validState(state) {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidInput,
				fmt.Sprintf("invalid state %q: must be one of %v", opts.State, terminalStates), nil)
		}
		filter.State = state
	}
	if opts.Limit < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "limit must not be negative", nil)
	}

	rt, err := openRuntime(cmd.Context(), opts.Config, cmd.ErrOrStderr(), runtimeOptions{})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer rt.Close()

	reports, err := rt.reports.ReadReports(cmd.Context(), filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}

	if formatter.JSON() {
		return formatter.Success(reports)
	}
	if len(reports) == 0 {
		fmt.Fprintln(formatter.Writer, "No reports.")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tDISPATCH\tEVENT\tMODEL\tNODE\tSTATE\tVISITED\tDEPTH\tREASON")
	for _, r := range reports {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Seq, r.DispatchID, r.HostEventID, r.ModelID, r.EventNodeID, r.State, r.NodesVisited, r.Depth, r.Reason)
	}
	return tw.Flush()
}

func validState(s ir.TerminalState) bool {
	for _, t := range terminalStates {
		if s == t {
			return true
		}
	}
	return false
}
