package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/eca/internal/ir"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	Payload     string // inline JSON object
	PayloadFile string // path to a JSON object
	Models      string // model files to run instead of the store
	Strict      bool   // non-completed invocations fail the command
}

// DispatchResult is the outcome of one dispatch.
type DispatchResult struct {
	Event    string                `json:"event"`
	Reports  []ir.InvocationReport `json:"reports"`
	Messages []Message             `json:"messages"`
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <event-id>",
		Short: "Fire a host event and print the invocation reports",
		Long: `Fire one host event against the enabled models and print one report per
invocation, in execution order, followed by any set_message output.

Against the configured store, reports are appended to the report log.
With --models, the models are loaded from files into memory and nothing
is persisted.

Exit codes:
  0 - Dispatched (with --strict: every invocation completed)
  1 - With --strict, an invocation aborted or hit the node-visit limit
  2 - Command error (bad payload, store unavailable, etc.)

Examples:
  eca dispatch user:login --payload '{"user":{"name":"Ada"}}'
  eca dispatch order:placed --models ./models --payload-file order.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Payload, "payload", "p", "", "event payload as a JSON object")
	cmd.Flags().StringVar(&opts.PayloadFile, "payload-file", "", "read the event payload from a JSON file")
	cmd.Flags().StringVar(&opts.Models, "models", "", "run model files from this path instead of the store")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail unless every invocation completed")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file")

	return cmd
}

func runDispatch(opts *DispatchOptions, event string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	if ir.IsPattern(event) {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Sprintf("cannot dispatch pattern %q: host event ids are concrete", event), nil)
	}
	payload, err := readPayload(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}

	var ro runtimeOptions
	if opts.Models != "" {
		lr, errs := LoadModels(opts.Models, LoadModeFailFast)
		if lr == nil || len(errs) > 0 {
			code, msg := firstLoadError(errs)
			return formatter.Fail(ExitCommandError, code, msg, nil)
		}
		ro.models = lr.Models
	}

	rt, err := openRuntime(ctx, opts.Config, cmd.ErrOrStderr(), ro)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer rt.Close()

	formatter.VerboseLog("Dispatching %s", event)
	result := DispatchResult{
		Event:   event,
		Reports: rt.engine.Dispatch(ctx, event, payload),
	}
	result.Messages = rt.messages.Drain()
	if result.Reports == nil {
		result.Reports = []ir.InvocationReport{}
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if err := printDispatch(formatter, result); err != nil {
		return err
	}

	if opts.Strict {
		failed := 0
		for _, r := range result.Reports {
			if r.State != ir.StateCompleted {
				failed++
			}
		}
		if failed > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d invocation(s) did not complete", failed))
		}
	}
	return nil
}

// readPayload decodes the event payload. Numbers stay json.Number so
// integers are not widened to float64.
func readPayload(opts *DispatchOptions) (map[string]any, error) {
	data := []byte(opts.Payload)
	if opts.PayloadFile != "" {
		var err error
		data, err = os.ReadFile(opts.PayloadFile)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

func printDispatch(formatter *OutputFormatter, result DispatchResult) error {
	w := formatter.Writer
	if len(result.Reports) == 0 {
		fmt.Fprintf(w, "%s: no subscribers\n", result.Event)
		return nil
	}

	fmt.Fprintf(w, "%s: %d invocation(s)\n", result.Event, len(result.Reports))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tMODEL\tNODE\tSTATE\tVISITED\tDEPTH\tREASON")
	for _, r := range result.Reports {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Seq, r.ModelID, r.EventNodeID, r.State, r.NodesVisited, r.Depth, r.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, m := range result.Messages {
		fmt.Fprintf(w, "message %s: %s\n", m.Model, m.Text)
	}
	return nil
}
