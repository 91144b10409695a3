package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/eca/internal/httpapi"
	"github.com/roach88/eca/internal/ir"
)

// IndexOptions holds flags for the index command.
type IndexOptions struct {
	*RootOptions
	Event string // show only the subscribers of this host event
}

// NewIndexCommand creates the index command.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build and print the subscription index",
		Long: `Build the subscription index and print its entries in dispatch order.

With a path, the index is built from the model files found there. Without
one, it is built from the enabled models of the configured store.

Examples:
  eca index ./models
  eca index --db eca.db --event user:login`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(opts, path, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Event, "event", "", "print only the entries a host event id resolves to")

	return cmd
}

func runIndex(opts *IndexOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	var ro runtimeOptions
	if path != "" {
		lr, errs := LoadModels(path, LoadModeFailFast)
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

	if err := rt.engine.RebuildIndex(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	snap := rt.index.Current(ctx)

	entries := snap.Entries()
	if opts.Event != "" {
		entries = snap.Lookup(opts.Event)
	}
	if entries == nil {
		entries = []ir.IndexEntry{}
	}

	if formatter.JSON() {
		return formatter.Success(httpapi.IndexResponse{
			Generation: snap.Generation,
			Digest:     snap.Digest(),
			Models:     snap.Models(),
			Entries:    entries,
		})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%d model(s), %d entries, digest %s\n", len(snap.Models()), len(entries), snap.Digest())
	if len(entries) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tPATTERN\tMODEL\tNODE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Priority, e.Pattern, e.ModelID, e.NodeID)
	}
	return tw.Flush()
}
