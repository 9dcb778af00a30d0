package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/dag"
	"github.com/lyzr/workflowcore/internal/hotstore"
	"github.com/lyzr/workflowcore/internal/models"
)

// Submitter validates and persists a new workflow and its initial, not-yet
// started execution, grounded on original_source's SubmitWorkflowUseCase.
type Submitter struct {
	workflows  WorkflowRepository
	executions ExecutionRepository
	hot        hotstore.Store
	hotTTL     time.Duration
	now        func() time.Time
}

// NewSubmitter builds a Submitter. hotTTL bounds how long the execution's hot
// store entry survives without a further write, mirroring the 24h expiry the
// original state store applies to every execution key it seeds.
func NewSubmitter(workflows WorkflowRepository, executions ExecutionRepository, hot hotstore.Store, hotTTL time.Duration) *Submitter {
	return &Submitter{workflows: workflows, executions: executions, hot: hot, hotTTL: hotTTL, now: time.Now}
}

// SubmitResult is the identifiers produced by a successful submission.
type SubmitResult struct {
	WorkflowID  uuid.UUID
	ExecutionID uuid.UUID
}

// Submit parses and validates dagJSON, persists the workflow definition and
// a PENDING execution, and seeds the hot store so the orchestrator can
// operate without a cold-store read once Trigger runs.
func (s *Submitter) Submit(ctx context.Context, name string, dagJSON json.RawMessage, timeoutSeconds *float64) (*SubmitResult, error) {
	d, err := dag.Build(dagJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow definition: %w", err)
	}

	now := s.now()

	workflow := &models.Workflow{
		ID:        uuid.New(),
		Name:      name,
		DAGJSON:   dagJSON,
		CreatedAt: now,
	}
	if err := s.workflows.Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("persist workflow: %w", err)
	}

	nodeIDs := make([]string, 0, len(d.Nodes))
	for id := range d.Nodes {
		nodeIDs = append(nodeIDs, id)
	}

	execution := &models.Execution{
		ID:             uuid.New(),
		WorkflowID:     workflow.ID,
		Status:         models.ExecutionPending,
		TimeoutSeconds: timeoutSeconds,
		CreatedAt:      now,
	}
	execution.InitializeNodes(nodeIDs)
	if err := s.executions.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("persist execution: %w", err)
	}

	executionID := execution.ID.String()
	if err := s.hot.SetMetadata(ctx, executionID, "workflow_id", workflow.ID.String()); err != nil {
		return nil, fmt.Errorf("seed execution metadata: %w", err)
	}
	if err := s.hot.SetAggregateStatus(ctx, executionID, string(models.ExecutionPending)); err != nil {
		return nil, fmt.Errorf("seed aggregate status: %w", err)
	}
	for _, nodeID := range nodeIDs {
		if err := s.hot.SetNodeStatus(ctx, executionID, nodeID, string(models.NodePending)); err != nil {
			return nil, fmt.Errorf("seed node status for %s: %w", nodeID, err)
		}
	}
	if err := s.hot.ExpireExecution(ctx, executionID, s.hotTTL); err != nil {
		return nil, fmt.Errorf("expire execution %s: %w", executionID, err)
	}

	return &SubmitResult{WorkflowID: workflow.ID, ExecutionID: execution.ID}, nil
}
