package coldstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/models"
)

// WorkflowRepository persists workflow definitions.
type WorkflowRepository struct {
	pool *Pool
}

// NewWorkflowRepository builds a WorkflowRepository over an open pool.
func NewWorkflowRepository(pool *Pool) *WorkflowRepository {
	return &WorkflowRepository{pool: pool}
}

// Create inserts a new workflow definition.
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.Workflow) error {
	query := `
		INSERT INTO workflows (id, name, dag_json, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, wf.ID, wf.Name, wf.DAGJSON, wf.CreatedAt)
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow definition by id.
func (r *WorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	query := `
		SELECT id, name, dag_json, created_at
		FROM workflows
		WHERE id = $1
	`
	wf := &models.Workflow{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&wf.ID, &wf.Name, &wf.DAGJSON, &wf.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return wf, nil
}
