// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/taskpilot/taskpilot-cli/cmd"
)

// main is the entry point for the TaskPilot CLI application.
func main() {
	// A signal-aware context lets an interrupted run still write its report.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.ExecuteContext(ctx)
}
