// Command eca compiles, indexes and runs event-condition-action models.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/eca/internal/cli"
	"github.com/roach88/eca/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "eca: configuration: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}

	root := cli.NewRootCommand(cfg)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "eca: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
