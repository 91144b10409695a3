package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin/builtin"
	"github.com/roach88/eca/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Disabled bool // store imported models as disabled
	Prune    bool // disable stored models absent from the import
}

// ImportResult summarises an import.
type ImportResult struct {
	Files     int      `json:"files"`
	Models    int      `json:"models"`
	Changed   []string `json:"changed"`
	Unchanged []string `json:"unchanged"`
	Pruned    []string `json:"pruned,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Load model files into the configured store",
		Long: `Validate model files and store them. A model whose content is unchanged
keeps its revision. Nothing is written when any model fails to compile.

With --prune, enabled models that the import does not define are
disabled (never deleted).

Examples:
  eca import ./models --db eca.db
  eca import ./models --store redis --redis-addr localhost:6379 --prune`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Disabled, "disabled", false, "store the models disabled")
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "disable stored models not defined by the import")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	lr, errs := LoadModels(path, LoadModeCollectAll)
	if lr == nil || len(errs) > 0 {
		code, msg := firstLoadError(errs)
		return formatter.Fail(ExitCommandError, code, msg, loadErrorDetails(errs))
	}
	if _, warnings, failures := compileAll(lr, builtin.NewCatalog(), formatter); len(failures) > 0 {
		return outputDiagnostics(formatter, "Import rejected", failures, warnings)
	}

	rt, err := openRuntime(ctx, opts.Config, cmd.ErrOrStderr(), runtimeOptions{})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	defer rt.Close()

	result := ImportResult{
		Files:     lr.FileCount,
		Models:    len(lr.Models),
		Changed:   []string{},
		Unchanged: []string{},
	}
	for _, m := range lr.Models {
		if opts.Disabled {
			m.Status = string(ir.StatusDisabled)
		}
		changed, err := rt.models.PutModel(ctx, m)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("store %s: %v", m.ID, err), nil)
		}
		if changed {
			result.Changed = append(result.Changed, m.ID)
			formatter.VerboseLog("Stored %s", m.ID)
		} else {
			result.Unchanged = append(result.Unchanged, m.ID)
		}
	}

	if opts.Prune {
		pruned, err := prune(cmd, rt.models, lr.Files)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
		}
		result.Pruned = pruned
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Imported %d model(s) from %d file(s): %d changed, %d unchanged\n",
		result.Models, result.Files, len(result.Changed), len(result.Unchanged))
	for _, id := range result.Pruned {
		fmt.Fprintf(formatter.Writer, "  disabled %s\n", id)
	}
	return nil
}

// prune disables every enabled model not in keep.
func prune(cmd *cobra.Command, models store.ModelStore, keep map[string]string) ([]string, error) {
	records, err := models.ListModels(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var pruned []string
	for _, rec := range records {
		if _, ok := keep[rec.ID]; ok || rec.Status != ir.StatusEnabled {
			continue
		}
		if err := models.SetStatus(cmd.Context(), rec.ID, ir.StatusDisabled); err != nil {
			return pruned, fmt.Errorf("disable %s: %w", rec.ID, err)
		}
		pruned = append(pruned, rec.ID)
	}
	return pruned, nil
}
