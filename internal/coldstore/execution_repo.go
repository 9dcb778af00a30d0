package coldstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/models"
)

// ExecutionRepository persists execution records: the durable write that
// makes a status transition survive process restarts, distinct from the hot
// store's low-latency copy used for dispatch decisions.
type ExecutionRepository struct {
	pool *Pool
}

// NewExecutionRepository builds an ExecutionRepository over an open pool.
func NewExecutionRepository(pool *Pool) *ExecutionRepository {
	return &ExecutionRepository{pool: pool}
}

// Create inserts a new execution row.
func (r *ExecutionRepository) Create(ctx context.Context, exec *models.Execution) error {
	nodeStates, err := json.Marshal(exec.NodeStates)
	if err != nil {
		return fmt.Errorf("marshal node states: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, params, timeout_seconds, node_states, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID, exec.WorkflowID, exec.Status, exec.Params, exec.TimeoutSeconds, nodeStates, exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// GetByID retrieves an execution by id.
func (r *ExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Execution, error) {
	query := `
		SELECT id, workflow_id, status, params, timeout_seconds, node_states, created_at, started_at, completed_at
		FROM executions
		WHERE id = $1
	`
	exec := &models.Execution{}
	var nodeStates []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&exec.ID, &exec.WorkflowID, &exec.Status, &exec.Params, &exec.TimeoutSeconds,
		&nodeStates, &exec.CreatedAt, &exec.StartedAt, &exec.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	if err := json.Unmarshal(nodeStates, &exec.NodeStates); err != nil {
		return nil, fmt.Errorf("unmarshal node states for execution %s: %w", id, err)
	}
	return exec, nil
}

// UpdateStatus transitions the execution-level status, stamping start/end
// timestamps as appropriate.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, at time.Time) error {
	var query string
	switch status {
	case models.ExecutionRunning:
		query = `UPDATE executions SET status = $2, started_at = $3 WHERE id = $1`
	case models.ExecutionCompleted, models.ExecutionFailed, models.ExecutionCancelled:
		query = `UPDATE executions SET status = $2, completed_at = $3 WHERE id = $1`
	default:
		query = `UPDATE executions SET status = $2 WHERE id = $1`
	}

	_, err := r.pool.Exec(ctx, query, id, status, at)
	if err != nil {
		return fmt.Errorf("update execution %s status: %w", id, err)
	}
	return nil
}

// UpdateNodeStates persists the full node-state map into the execution row.
func (r *ExecutionRepository) UpdateNodeStates(ctx context.Context, id uuid.UUID, states map[string]*models.NodeState) error {
	raw, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("marshal node states: %w", err)
	}

	query := `UPDATE executions SET node_states = $2 WHERE id = $1`
	_, err = r.pool.Exec(ctx, query, id, raw)
	if err != nil {
		return fmt.Errorf("update execution %s node states: %w", id, err)
	}
	return nil
}

// ListRunningOlderThan returns RUNNING executions started before cutoff, the
// set the timeout sweeper needs to scan on each tick. A limit of 0 means no
// limit.
func (r *ExecutionRepository) ListRunningOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Execution, error) {
	query := `
		SELECT id, workflow_id, status, params, timeout_seconds, node_states, created_at, started_at, completed_at
		FROM executions
		WHERE status = $1 AND started_at IS NOT NULL AND started_at < $2
		ORDER BY started_at ASC
		LIMIT NULLIF($3, 0)
	`
	rows, err := r.pool.Query(ctx, query, models.ExecutionRunning, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list running executions: %w", err)
	}
	defer rows.Close()

	var execs []*models.Execution
	for rows.Next() {
		exec := &models.Execution{}
		var nodeStates []byte
		if err := rows.Scan(
			&exec.ID, &exec.WorkflowID, &exec.Status, &exec.Params, &exec.TimeoutSeconds,
			&nodeStates, &exec.CreatedAt, &exec.StartedAt, &exec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if err := json.Unmarshal(nodeStates, &exec.NodeStates); err != nil {
			return nil, fmt.Errorf("unmarshal node states: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate running executions: %w", err)
	}
	return execs, nil
}

// InsertDLQEntry appends a dead-letter record.
func (r *ExecutionRepository) InsertDLQEntry(ctx context.Context, entry *models.DLQEntry) error {
	var detail []byte
	if entry.ErrorDetail != nil {
		var err error
		detail, err = json.Marshal(entry.ErrorDetail)
		if err != nil {
			return fmt.Errorf("marshal error detail: %w", err)
		}
	}

	query := `
		INSERT INTO dlq_entries
			(id, task_id, execution_id, node_id, handler, config, error_message, retry_count, error_detail, original_timestamp, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.TaskID, entry.ExecutionID, entry.NodeID, entry.Handler, entry.Config,
		entry.ErrorMessage, entry.RetryCount, detail, entry.OriginalTimestamp, entry.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dlq entry: %w", err)
	}
	return nil
}
