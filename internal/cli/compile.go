package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/plugin"
	"github.com/roach88/eca/internal/plugin/builtin"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled models in canonical form.
type CompilationResult struct {
	Models   []json.RawMessage `json:"models"`
	Warnings []Diagnostic      `json:"warnings,omitempty"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ModelCount     int
	FileCount      int
	EventNodes     int
	ConditionNodes int
	ActionNodes    int
	GatewayNodes   int
}

// Diagnostic is a compiler finding attributed to a model.
type Diagnostic struct {
	Model string `json:"model"`
	File  string `json:"file,omitempty"`
	compiler.ValidationError
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <path>",
		Short: "Compile model files to canonical JSON",
		Long: `Compile YAML, JSON or CUE model files to their canonical JSON form.

Every model is validated against the built-in plugin catalog. Unknown
plugins and rejected configs degrade a node and are reported as warnings;
structural problems fail the compilation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := LoadModels(path, LoadModeCollectAll)
	if loadResult == nil || len(loadErrors) > 0 {
		code, msg := firstLoadError(loadErrors)
		return formatter.Fail(ExitCommandError, code, msg, loadErrorDetails(loadErrors))
	}
	formatter.VerboseLog("Found %d model file(s) in %s", loadResult.FileCount, path)

	graphs, warnings, failures := compileAll(loadResult, builtin.NewCatalog(), formatter)
	if len(failures) > 0 {
		return outputDiagnostics(formatter, "Compilation failed", failures, warnings)
	}

	result := &CompilationResult{
		Models:   make([]json.RawMessage, 0, len(graphs)),
		Warnings: warnings,
	}
	stats := CompilationStats{ModelCount: len(graphs), FileCount: loadResult.FileCount}
	for _, g := range graphs {
		data, err := compiler.Marshal(g.Model)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("marshal %s: %v", g.ID(), err), nil)
		}
		result.Models = append(result.Models, data)
		stats.EventNodes += len(g.Model.Events)
		stats.ConditionNodes += len(g.Model.Conditions)
		stats.ActionNodes += len(g.Model.Actions)
		stats.GatewayNodes += len(g.Model.Gateways)
	}

	if opts.Output != "" {
		if err := writeCompiled(result, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d model(s) from %d file(s)\n", stats.ModelCount, stats.FileCount)
	fmt.Fprintf(w, "  nodes: %d event, %d condition, %d action, %d gateway\n",
		stats.EventNodes, stats.ConditionNodes, stats.ActionNodes, stats.GatewayNodes)
	printWarnings(formatter, warnings)
	if opts.Output != "" {
		fmt.Fprintf(w, "  written to %s\n", opts.Output)
	}
	return nil
}

// compileAll compiles every loaded model. It returns the graphs of the
// models that compiled, all warnings, and the errors of those that did not.
func compileAll(lr *LoadResult, catalog *plugin.Catalog, formatter *OutputFormatter) ([]*compiler.Graph, []Diagnostic, []Diagnostic) {
	var graphs []*compiler.Graph
	var warnings, failures []Diagnostic
	for i := range lr.Models {
		raw := &lr.Models[i]
		file := lr.Files[raw.ID]
		formatter.VerboseLog("Compiling model: %s", raw.ID)

		g, err := compiler.Compile(raw, catalog)
		if err != nil {
			var me *compiler.ModelError
			if errors.As(err, &me) {
				for _, ve := range me.Errors {
					failures = append(failures, Diagnostic{Model: raw.ID, File: file, ValidationError: ve})
				}
				continue
			}
			failures = append(failures, Diagnostic{Model: raw.ID, File: file, ValidationError: compiler.ValidationError{
				Field:    "model",
				Message:  err.Error(),
				Code:     compiler.ErrInvalidModel,
				Severity: compiler.SeverityError,
			}})
			continue
		}
		for _, ve := range g.Diagnostics {
			warnings = append(warnings, Diagnostic{Model: raw.ID, File: file, ValidationError: ve})
		}
		graphs = append(graphs, g)
	}
	return graphs, warnings, failures
}

// writeCompiled writes the canonical models as an indented JSON document.
func writeCompiled(result *CompilationResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func printWarnings(formatter *OutputFormatter, warnings []Diagnostic) {
	for _, d := range warnings {
		fmt.Fprintf(formatter.Writer, "  warning %s: %s\n", d.Model, d.ValidationError.Error())
	}
}

// outputDiagnostics prints compiler errors and returns ExitFailure.
func outputDiagnostics(formatter *OutputFormatter, title string, failures, warnings []Diagnostic) error {
	msg := fmt.Sprintf("%d model error(s)", len(failures))
	if formatter.JSON() {
		data := ValidationResult{Valid: false, Errors: failures, Warnings: warnings}
		if err := formatter.Result(data, &CLIError{Code: failures[0].Code, Message: failures[0].Message}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✗ %s\n", title)
	fmt.Fprintln(w)
	for _, d := range failures {
		if d.File != "" {
			fmt.Fprintf(w, "%s (%s)\n", d.Model, d.File)
		} else {
			fmt.Fprintln(w, d.Model)
		}
		fmt.Fprintf(w, "  %s\n\n", d.ValidationError.Error())
	}
	printWarnings(formatter, warnings)
	return NewExitError(ExitFailure, msg)
}

func loadErrorDetails(errs []error) []string {
	if len(errs) < 2 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
