package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/store"
)

// NewModelsCommand creates the models command group.
func NewModelsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and manage stored models",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List stored models",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelsList(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "show <id>",
		Short:         "Print a stored model as YAML",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelsShow(rootOpts, args[0], cmd)
		},
	})
	for _, status := range []ir.Status{ir.StatusEnabled, ir.StatusDisabled} {
		verb := "enable"
		if status == ir.StatusDisabled {
			verb = "disable"
		}
		cmd.AddCommand(&cobra.Command{
			Use:           verb + " <id>",
			Short:         fmt.Sprintf("Mark a stored model %s", status),
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runModelsSetStatus(rootOpts, args[0], status, cmd)
			},
		})
	}
	cmd.AddCommand(&cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a stored model",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelsDelete(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

// withStore opens the configured store, runs fn and closes the store.
func withStore(opts *RootOptions, cmd *cobra.Command, fn func(*OutputFormatter, store.ModelStore) error) error {
	formatter := newFormatter(opts, cmd)
	rt, err := openRuntime(cmd.Context(), opts.Config, cmd.ErrOrStderr(), runtimeOptions{})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer rt.Close()
	return fn(formatter, rt.models)
}

func runModelsList(opts *RootOptions, cmd *cobra.Command) error {
	return withStore(opts, cmd, func(f *OutputFormatter, ms store.ModelStore) error {
		records, err := ms.ListModels(cmd.Context())
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
		}
		if records == nil {
			records = []store.ModelRecord{}
		}
		if f.JSON() {
			return f.Success(records)
		}
		if len(records) == 0 {
			fmt.Fprintln(f.Writer, "No models stored.")
			return nil
		}
		tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tREVISION\tLABEL")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.Status, r.Revision, r.Label)
		}
		return tw.Flush()
	})
}

func runModelsShow(opts *RootOptions, id string, cmd *cobra.Command) error {
	return withStore(opts, cmd, func(f *OutputFormatter, ms store.ModelStore) error {
		raw, err := ms.GetModel(cmd.Context(), id)
		if err != nil {
			return modelStoreFailure(f, id, err)
		}
		if f.JSON() {
			return f.Success(raw)
		}
		data, err := yaml.Marshal(raw)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
		}
		_, err = f.Writer.Write(data)
		return err
	})
}

func runModelsSetStatus(opts *RootOptions, id string, status ir.Status, cmd *cobra.Command) error {
	return withStore(opts, cmd, func(f *OutputFormatter, ms store.ModelStore) error {
		if err := ms.SetStatus(cmd.Context(), id, status); err != nil {
			return modelStoreFailure(f, id, err)
		}
		return f.Success(fmt.Sprintf("✓ %s %s", id, status))
	})
}

func runModelsDelete(opts *RootOptions, id string, cmd *cobra.Command) error {
	return withStore(opts, cmd, func(f *OutputFormatter, ms store.ModelStore) error {
		if err := ms.DeleteModel(cmd.Context(), id); err != nil {
			return modelStoreFailure(f, id, err)
		}
		return f.Success(fmt.Sprintf("✓ %s deleted", id))
	})
}

func modelStoreFailure(f *OutputFormatter, id string, err error) error {
	if store.IsNotFound(err) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("model not found: %s", id), nil)
	}
	return f.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
}
