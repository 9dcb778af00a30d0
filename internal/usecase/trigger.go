package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/dag"
	"github.com/lyzr/workflowcore/internal/hotstore"
	"github.com/lyzr/workflowcore/internal/models"
	"github.com/lyzr/workflowcore/internal/template"
)

// ErrExecutionNotFound is returned when Trigger is called for an unknown
// execution id.
var ErrExecutionNotFound = errors.New("usecase: execution not found")

// ErrWorkflowNotFound is returned when an execution references a workflow
// that no longer exists.
var ErrWorkflowNotFound = errors.New("usecase: workflow not found")

// Trigger starts a PENDING execution: it resolves and dispatches the DAG's
// root nodes and flips the execution to RUNNING, grounded on
// original_source's TriggerExecutionUseCase.
type Trigger struct {
	workflows  WorkflowRepository
	executions ExecutionRepository
	hot        hotstore.Store
	hotTTL     time.Duration
	broker     broker.Broker
	now        func() time.Time
}

// NewTrigger builds a Trigger. hotTTL bounds how long the execution's hot
// store entry survives without a further write.
func NewTrigger(workflows WorkflowRepository, executions ExecutionRepository, hot hotstore.Store, hotTTL time.Duration, b broker.Broker) *Trigger {
	return &Trigger{workflows: workflows, executions: executions, hot: hot, hotTTL: hotTTL, broker: b, now: time.Now}
}

// Run starts executionID, optionally seeding it with params that later
// template placeholders can reference as {{ params.<key> }}.
func (t *Trigger) Run(ctx context.Context, executionID uuid.UUID, params map[string]interface{}) error {
	execution, err := t.executions.GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	workflow, err := t.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, execution.WorkflowID)
	}

	d, err := dag.Build(workflow.DAGJSON)
	if err != nil {
		return fmt.Errorf("rebuild dag for workflow %s: %w", workflow.ID, err)
	}

	executionIDStr := executionID.String()

	if len(params) > 0 {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		if err := t.hot.SetNodeOutput(ctx, executionIDStr, "params", paramsJSON); err != nil {
			return fmt.Errorf("seed params output: %w", err)
		}
	}

	rootNodes := d.RootNodes()

	outputs, err := t.hot.GetAllOutputs(ctx, executionIDStr)
	if err != nil {
		return fmt.Errorf("read outputs: %w", err)
	}

	now := t.now()
	if len(rootNodes) > 0 && execution.Status == models.ExecutionPending {
		execution.Status = models.ExecutionRunning
		execution.StartedAt = &now
		if err := t.executions.UpdateStatus(ctx, executionID, models.ExecutionRunning, now); err != nil {
			return fmt.Errorf("mark execution running: %w", err)
		}
	}

	for _, nodeID := range rootNodes {
		node := d.Nodes[nodeID]
		resolvedConfig := template.ResolveConfig(node.Config, outputs)
		configJSON, err := json.Marshal(resolvedConfig)
		if err != nil {
			return fmt.Errorf("marshal resolved config for node %s: %w", nodeID, err)
		}

		task := broker.Task{
			ID:          uuid.New().String(),
			ExecutionID: executionIDStr,
			NodeID:      nodeID,
			Handler:     node.Handler,
			Config:      configJSON,
			RetryCount:  0,
			CreatedAt:   now,
		}
		if err := t.hot.SetNodeStatus(ctx, executionIDStr, nodeID, string(models.NodeRunning)); err != nil {
			return fmt.Errorf("mark node %s running: %w", nodeID, err)
		}
		if _, err := t.broker.PublishTask(ctx, task); err != nil {
			return fmt.Errorf("publish task for node %s: %w", nodeID, err)
		}
	}

	if err := t.hot.SetAggregateStatus(ctx, executionIDStr, string(models.ExecutionRunning)); err != nil {
		return fmt.Errorf("set aggregate status: %w", err)
	}
	if err := t.hot.SetMetadata(ctx, executionIDStr, "workflow_id", workflow.ID.String()); err != nil {
		return fmt.Errorf("refresh workflow_id metadata: %w", err)
	}
	if execution.StartedAt != nil {
		if err := t.hot.SetMetadata(ctx, executionIDStr, "started_at", execution.StartedAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("set started_at metadata: %w", err)
		}
	}
	if execution.TimeoutSeconds != nil {
		if err := t.hot.SetMetadata(ctx, executionIDStr, "timeout_seconds", strconv.FormatFloat(*execution.TimeoutSeconds, 'f', -1, 64)); err != nil {
			return fmt.Errorf("set timeout_seconds metadata: %w", err)
		}
	}
	if err := t.hot.ExpireExecution(ctx, executionIDStr, t.hotTTL); err != nil {
		return fmt.Errorf("expire execution %s: %w", executionIDStr, err)
	}

	return nil
}
