package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/eca/internal/config"
	"github.com/roach88/eca/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config starts from the environment; global flags override it.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the eca CLI. cfg carries
// the environment configuration and supplies the flag defaults.
func NewRootCommand(cfg config.Config) *cobra.Command {
	opts := &RootOptions{Config: cfg}

	cmd := &cobra.Command{
		Use:   "eca",
		Short: "Event-condition-action rule engine",
		Long: `eca compiles event-condition-action models, indexes the host events
they subscribe to and runs them when those events are dispatched.`,
		Version:       ir.EngineVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Verbose {
				opts.Config.LogLevel = "debug"
			}
			if err := opts.Config.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "configuration", err)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Config.Store, "store", cfg.Store, "model store backend (sqlite|redis|memory)")
	flags.StringVar(&opts.Config.DBPath, "db", cfg.DBPath, "path to the SQLite database")
	flags.StringVar(&opts.Config.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for --store redis")
	flags.IntVar(&opts.Config.MaxNodeVisits, "max-node-visits", cfg.MaxNodeVisits, "node-visit ceiling per root invocation")
	flags.StringVar(&opts.Config.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	flags.StringVar(&opts.Config.LogFormat, "log-format", cfg.LogFormat, "log format (text|json)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewModelsCommand(opts))
	cmd.AddCommand(NewReportsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}
