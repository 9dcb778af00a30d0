package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/dag"
	"github.com/lyzr/workflowcore/internal/dagcache"
)

// NewDAGLoader builds a dagcache.Loader that reads a workflow's DAG JSON
// from the cold store and parses it, the function dagcache.Cache calls on
// every miss.
func NewDAGLoader(workflows WorkflowRepository) dagcache.Loader {
	return func(ctx context.Context, workflowID string) (*dag.DAG, error) {
		id, err := uuid.Parse(workflowID)
		if err != nil {
			return nil, fmt.Errorf("parse workflow id %s: %w", workflowID, err)
		}
		workflow, err := workflows.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
		}
		return dag.Build(workflow.DAGJSON)
	}
}
