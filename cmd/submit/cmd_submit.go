package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lyzr/workflowcore/internal/bootstrap"
	"github.com/lyzr/workflowcore/internal/coldstore"
	"github.com/lyzr/workflowcore/internal/ratelimit"
	"github.com/lyzr/workflowcore/internal/usecase"
)

var (
	submitName       string
	submitFile       string
	submitTimeout    float64
	submitRateLimit  int64
	submitRateWindow int
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Register a workflow definition and create a pending execution",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitName, "name", "", "human-readable workflow name (required)")
	submitCmd.Flags().StringVar(&submitFile, "dag", "", "path to the workflow's DAG JSON file (required)")
	submitCmd.Flags().Float64Var(&submitTimeout, "timeout-seconds", 0, "execution-wide timeout in seconds, 0 for none")
	submitCmd.Flags().Int64Var(&submitRateLimit, "rate-limit", 20, "max submissions of this workflow name allowed per rate-window")
	submitCmd.Flags().IntVar(&submitRateWindow, "rate-window-seconds", 60, "window over which --rate-limit is enforced")
	submitCmd.MarkFlagRequired("name")
	submitCmd.MarkFlagRequired("dag")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	ctx := context.Background()
	components, err := bootstrap.Setup(ctx, "submit-cli", bootstrap.WithoutBroker())
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer components.Shutdown(ctx)

	dagJSON, err := os.ReadFile(submitFile)
	if err != nil {
		return fmt.Errorf("read dag file %s: %w", submitFile, err)
	}
	if !json.Valid(dagJSON) {
		return fmt.Errorf("dag file %s does not contain valid JSON", submitFile)
	}

	limiter := ratelimit.New(components.Redis)
	limit, err := limiter.CheckSubmissionLimit(ctx, submitName, submitRateLimit, submitRateWindow)
	if err != nil {
		return fmt.Errorf("check submission rate limit: %w", err)
	}
	if !limit.Allowed {
		return fmt.Errorf("submission rate limit exceeded for workflow %q: %d/%d in the current window, retry in %ds",
			submitName, limit.CurrentCount, limit.Limit, limit.RetryAfterSeconds)
	}

	workflows := coldstore.NewWorkflowRepository(components.Cold)
	executions := coldstore.NewExecutionRepository(components.Cold)
	submitter := usecase.NewSubmitter(workflows, executions, components.Hot, components.Config.Orchestrator.ExecutionMetadataTTL)

	var timeoutPtr *float64
	if submitTimeout > 0 {
		timeoutPtr = &submitTimeout
	}

	result, err := submitter.Submit(ctx, submitName, dagJSON, timeoutPtr)
	if err != nil {
		return fmt.Errorf("submit workflow: %w", err)
	}

	fmt.Printf("workflow_id=%s execution_id=%s\n", result.WorkflowID, result.ExecutionID)
	return nil
}
