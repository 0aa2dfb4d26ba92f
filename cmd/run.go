// File: cmd/run.go
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/observability"
	"github.com/watchloom/pagewatch/internal/schemas"
)

var (
	runURL           string
	runTaskID        string
	runPlanOnly      bool
	runExecutionOnly bool
	runForceNewPlan  bool
	runMode          string
)

// newRunCommand synthesizes a TaskInput from CLI flags and runs it through
// the orchestrator once, printing the resulting envelope body to stdout.
func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <instruction>",
		Short: "Run one watch instruction against a URL and print the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	cmd.Flags().StringVar(&runURL, "url", "", "target page URL (required)")
	cmd.Flags().StringVar(&runTaskID, "task-id", "", "task identifier, enables monitoring/change-detection persistence")
	cmd.Flags().BoolVar(&runPlanOnly, "plan-only", false, "generate and cache a plan without executing it")
	cmd.Flags().BoolVar(&runExecutionOnly, "execution-only", false, "replay a cached plan without generating a new one")
	cmd.Flags().BoolVar(&runForceNewPlan, "force-new-plan", false, "skip the cache and generate a fresh plan")
	cmd.Flags().StringVar(&runMode, "mode", "", "execution mode: interactive, plan, or auto (default interactive)")
	cmd.MarkFlagRequired("url")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	application, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer application.Close()

	input := schemas.TaskInput{
		Instruction: args[0],
		URL:         runURL,
		TaskID:      runTaskID,
		Options: &schemas.TaskOptions{
			ExecutionMode: schemas.ExecutionMode(runMode),
			PlanOnly:      runPlanOnly,
			ExecutionOnly: runExecutionOnly,
			ForceNewPlan:  runForceNewPlan,
		},
	}

	result, err := application.orch.Handle(ctx, input)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("run: encoding result: %w", err)
	}
	fmt.Println(string(out))
	if !result.Success {
		return fmt.Errorf("task did not succeed: status=%s", result.Status)
	}
	return nil
}
