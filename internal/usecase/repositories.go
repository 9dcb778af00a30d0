// Package usecase implements the entry points that create and start
// executions: Submit validates and persists a workflow plus its initial
// execution record, Trigger starts a pending execution by dispatching its
// root nodes.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/models"
)

// WorkflowRepository is the subset of coldstore.WorkflowRepository Submit
// and Trigger depend on.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *models.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
}

// ExecutionRepository is the subset of coldstore.ExecutionRepository Submit
// and Trigger depend on.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *models.Execution) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Execution, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, at time.Time) error
}
