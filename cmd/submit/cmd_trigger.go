package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lyzr/workflowcore/internal/bootstrap"
	"github.com/lyzr/workflowcore/internal/coldstore"
	"github.com/lyzr/workflowcore/internal/usecase"
)

var (
	triggerExecutionID string
	triggerParamsFile  string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start a pending execution by dispatching its root nodes",
	RunE:  runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&triggerExecutionID, "execution-id", "", "execution id returned by submit (required)")
	triggerCmd.Flags().StringVar(&triggerParamsFile, "params", "", "optional path to a JSON object of execution params")
	triggerCmd.MarkFlagRequired("execution-id")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	executionID, err := uuid.Parse(triggerExecutionID)
	if err != nil {
		return fmt.Errorf("invalid --execution-id %q: %w", triggerExecutionID, err)
	}

	var params map[string]interface{}
	if triggerParamsFile != "" {
		raw, err := os.ReadFile(triggerParamsFile)
		if err != nil {
			return fmt.Errorf("read params file %s: %w", triggerParamsFile, err)
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return fmt.Errorf("parse params file %s: %w", triggerParamsFile, err)
		}
	}

	ctx := context.Background()
	components, err := bootstrap.Setup(ctx, "trigger-cli")
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer components.Shutdown(ctx)

	workflows := coldstore.NewWorkflowRepository(components.Cold)
	executions := coldstore.NewExecutionRepository(components.Cold)
	trigger := usecase.NewTrigger(workflows, executions, components.Hot, components.Config.Orchestrator.ExecutionMetadataTTL, components.Broker)

	if err := trigger.Run(ctx, executionID, params); err != nil {
		return fmt.Errorf("trigger execution: %w", err)
	}

	fmt.Printf("triggered execution_id=%s\n", executionID)
	return nil
}
