package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/eca/internal/plugin/builtin"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool // treat warnings as errors
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool         `json:"valid"`
	Models   int          `json:"models"`
	Errors   []Diagnostic `json:"errors,omitempty"`
	Warnings []Diagnostic `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate model files without writing output",
		Long: `Validate model files against the built-in plugin catalog.

Reports structural errors and the warnings a compile would record
(degraded nodes, dropped edges, unguarded cycles). With --strict,
warnings fail the validation too.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on warnings")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := LoadModels(path, LoadModeFailFast)
	if loadResult == nil || len(loadErrors) > 0 {
		code, msg := firstLoadError(loadErrors)
		return formatter.Fail(ExitCommandError, code, msg, nil)
	}
	formatter.VerboseLog("Found %d model file(s) in %s", loadResult.FileCount, path)

	graphs, warnings, failures := compileAll(loadResult, builtin.NewCatalog(), formatter)
	if opts.Strict {
		failures = append(failures, warnings...)
		warnings = nil
	}
	if len(failures) > 0 {
		return outputDiagnostics(formatter, "Validation failed", failures, warnings)
	}

	result := ValidationResult{Valid: true, Models: len(graphs), Warnings: warnings}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ All %d model(s) valid\n", result.Models)
	printWarnings(formatter, warnings)
	return nil
}
