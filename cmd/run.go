// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
	"github.com/taskpilot/taskpilot-cli/internal/agent"
	"github.com/taskpilot/taskpilot-cli/internal/browser"
	"github.com/taskpilot/taskpilot-cli/internal/config"
	"github.com/taskpilot/taskpilot-cli/internal/llmclient"
	"github.com/taskpilot/taskpilot-cli/internal/observability"
)

const browserShutdownTimeout = 15 * time.Second

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one natural-language task against a live web application",
		Long: `Resolves where the task should be performed, bootstraps a browser
session (restoring cookies when provided), asks the reasoning service for a UI
action plan, executes it, and writes report.json into the output directory.

The process exits 0 whenever a report was written, regardless of the task
outcome; the report's status field carries the real result.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so CLI values override config file and env vars.
			if err := viper.BindPFlag("agent.login_wait", cmd.Flags().Lookup("login-wait")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			cfg.Run.Task, _ = cmd.Flags().GetString("task")
			cfg.Run.OutDir, _ = cmd.Flags().GetString("outdir")
			cfg.Run.CookieFile, _ = cmd.Flags().GetString("cookies")
			cfg.Run.StartURL, _ = cmd.Flags().GetString("start-url")

			if cfg.Run.Task == "" {
				return fmt.Errorf("--task is required")
			}
			if err := os.MkdirAll(cfg.Run.OutDir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory %s: %w", cfg.Run.OutDir, err)
			}

			return executeRun(ctx, cfg, logger)
		},
	}

	runCmd.Flags().StringP("task", "t", "", "Natural-language task to perform (required)")
	runCmd.Flags().StringP("outdir", "o", "./output", "Directory for report.json and captures")
	runCmd.Flags().String("cookies", "", "Path to a JSON cookie file for session restore")
	runCmd.Flags().String("start-url", "", "Skip base URL resolution and start at this URL")
	runCmd.Flags().Bool("login-wait", false, "Wait (bounded) for a manual login when no cookies are given")
	runCmd.Flags().Bool("headless", true, "Run the browser headless")

	return runCmd
}

// executeRun wires the components and drives one agent run. Failures before
// the agent produces a report are catastrophic and exit non-zero; once a
// report exists the command succeeds.
func executeRun(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	client, err := llmclient.NewGeminiClient(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize reasoning client: %w", err)
	}

	manager, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser manager: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), browserShutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}()

	report := agent.New(cfg, client, manager, logger).Run(ctx)

	path, err := agent.WriteReport(cfg.Run.OutDir, report)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Info("Report written.",
		zap.String("path", path),
		zap.String("status", string(report.Status)))

	fmt.Printf("\nRun complete. Status: %s\nReport: %s\n", report.Status, path)
	if report.Status == schemas.StatusFailed && report.Error != "" {
		fmt.Printf("Error: %s\n", report.Error)
	}
	return nil
}
