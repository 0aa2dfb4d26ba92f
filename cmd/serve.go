// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/engine"
	"github.com/watchloom/pagewatch/internal/observability"
)

// newServeCommand runs the worker pool that polls the task table and drives
// each due task through the orchestrator until interrupted.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the task table and run due watches continuously",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("serve: DATABASE_URL is required to poll the task table")
	}

	ctx := cmd.Context()
	application, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer application.Close()

	eng, err := engine.New(cfg.Engine, logger, application.store, application.orch)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("serve starting")
	eng.Run(ctx)
	logger.Info("serve stopped")
	return nil
}
