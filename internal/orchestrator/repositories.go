// Package orchestrator reacts to node completions, resolves DAG
// dependencies, and dispatches the next ready nodes — the coordination core
// of this module, grounded on original_source's OrchestrateUseCase.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/models"
)

// WorkflowRepository is the subset of coldstore.WorkflowRepository the
// coordinator depends on.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
}

// ExecutionRepository is the subset of coldstore.ExecutionRepository the
// coordinator depends on.
type ExecutionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Execution, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, at time.Time) error
	UpdateNodeStates(ctx context.Context, id uuid.UUID, states map[string]*models.NodeState) error
	ListRunningOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Execution, error)
}
