package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"task-sync/internal/cli"
	"task-sync/internal/config"
)

func main() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// An interrupt cancels the running command; queued changes stay queued.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = cli.NewRootCommand(cfg, cli.OpenRuntime).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
