package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/eca/internal/httpapi"
	"github.com/roach88/eca/internal/watch"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr   string
	Models string // directory watched for model files
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP dispatch API",
		Long: `Start the HTTP API over the configured store.

Hosts fire events with POST /v1/events/{event}. Models can be managed
under /v1/models, the index inspected under /v1/index and Prometheus
metrics scraped from /metrics.

With --models, the directory is loaded into the store at startup and
watched: created or edited files are stored again, models whose file
disappears are disabled. With --store redis, changes written by other
processes invalidate the local index.

Example:
  eca serve --db eca.db --models ./models --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", rootOpts.Config.HTTPAddr, "listen address")
	cmd.Flags().StringVar(&opts.Models, "models", rootOpts.Config.ModelsDir, "watch this directory for model files")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, opts.Config, cmd.ErrOrStderr(), runtimeOptions{})
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.logger.Error("error closing store", "error", err)
		}
	}()

	if opts.Models != "" {
		loader := watch.New(opts.Models, rt.models, watch.WithLogger(rt.logger))
		if err := loader.Watch(ctx); err != nil {
			return WrapExitError(ExitCommandError, "watch models", err)
		}
		defer func() {
			if err := loader.Stop(); err != nil {
				rt.logger.Error("error stopping model watcher", "error", err)
			}
		}()
	}

	if rt.redis != nil {
		unsubscribe, err := rt.redis.Watch(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "subscribe to model changes", err)
		}
		defer func() { _ = unsubscribe() }()
	}

	// A store that cannot be read yet is not fatal: the previous (empty)
	// index stays in effect and dispatch retries the rebuild.
	if err := rt.engine.RebuildIndex(ctx); err != nil {
		rt.logger.Error("initial index rebuild failed", "error", err)
	}

	srv := httpapi.NewServer(rt.engine,
		httpapi.WithModelStore(rt.models),
		httpapi.WithGatherer(rt.registry),
		httpapi.WithLogger(rt.logger))

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", opts.Addr)
	if err := srv.ListenAndServe(ctx, opts.Addr); err != nil && ctx.Err() == nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	rt.logger.Info("server stopped gracefully")
	return nil
}
