package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/dag"
	"github.com/lyzr/workflowcore/internal/dagcache"
	"github.com/lyzr/workflowcore/internal/hotstore"
	"github.com/lyzr/workflowcore/internal/logger"
	"github.com/lyzr/workflowcore/internal/models"
	"github.com/lyzr/workflowcore/internal/template"
)

// terminalAggregateStatuses mirrors models.ExecutionStatus.IsTerminal but
// against the plain strings the hot store holds.
var terminalAggregateStatuses = map[string]bool{
	string(models.ExecutionCompleted): true,
	string(models.ExecutionFailed):    true,
	string(models.ExecutionCancelled): true,
}

// Coordinator is the dispatch loop's brain: given a node completion, it
// updates state, checks whether the workflow failed or finished, and
// dispatches whatever nodes are now ready.
type Coordinator struct {
	workflows  WorkflowRepository
	executions ExecutionRepository
	hot        hotstore.Store
	broker     broker.Broker
	cache      *dagcache.Cache
	log        *logger.Logger

	holderID    string
	lockTTL     time.Duration
	executionTTL time.Duration
}

// New builds a Coordinator. cache must be constructed with a Loader that
// reads through to workflows — see NewDAGLoader. executionTTL is applied to
// the execution's hot-store entry every time the coordinator writes to it,
// so a long-running execution's state never expires mid-flight while a
// finished one ages out on schedule.
func New(workflows WorkflowRepository, executions ExecutionRepository, hot hotstore.Store, b broker.Broker, cache *dagcache.Cache, log *logger.Logger, lockTTL, executionTTL time.Duration) *Coordinator {
	return &Coordinator{
		workflows:    workflows,
		executions:   executions,
		hot:          hot,
		broker:       b,
		cache:        cache,
		log:          log,
		holderID:     uuid.New().String(),
		lockTTL:      lockTTL,
		executionTTL: executionTTL,
	}
}

// refreshTTL re-applies the execution TTL after a hot-store write so the
// key doesn't expire while the execution is still active.
func (c *Coordinator) refreshTTL(ctx context.Context, executionID string) error {
	if err := c.hot.ExpireExecution(ctx, executionID, c.executionTTL); err != nil {
		return fmt.Errorf("refresh execution ttl for %s: %w", executionID, err)
	}
	return nil
}

// HandleCompletion processes one node completion: it records the outcome,
// fails the execution on a node failure, and otherwise attempts to dispatch
// whatever nodes just became ready.
func (c *Coordinator) HandleCompletion(ctx context.Context, completion broker.Completion) error {
	cachedStatus, err := c.getAggregateStatus(ctx, completion.ExecutionID)
	if err != nil {
		return fmt.Errorf("read aggregate status: %w", err)
	}
	if terminalAggregateStatuses[cachedStatus] {
		return nil
	}

	if completion.Status == string(models.NodeSkipped) {
		// The dispatcher already marked the node SKIPPED; only its dependents need re-evaluating.
		return c.dispatchReadyNodes(ctx, completion.ExecutionID)
	}

	if completion.Status == string(models.NodeCompleted) {
		if err := c.hot.SetNodeStatus(ctx, completion.ExecutionID, completion.NodeID, string(models.NodeCompleted)); err != nil {
			return fmt.Errorf("mark node %s completed: %w", completion.NodeID, err)
		}
		if len(completion.Output) > 0 {
			if err := c.hot.SetNodeOutput(ctx, completion.ExecutionID, completion.NodeID, completion.Output); err != nil {
				return fmt.Errorf("store output for node %s: %w", completion.NodeID, err)
			}
		}
		if err := c.refreshTTL(ctx, completion.ExecutionID); err != nil {
			return err
		}
	} else {
		if err := c.hot.SetNodeStatus(ctx, completion.ExecutionID, completion.NodeID, string(models.NodeFailed)); err != nil {
			return fmt.Errorf("mark node %s failed: %w", completion.NodeID, err)
		}
		if err := c.refreshTTL(ctx, completion.ExecutionID); err != nil {
			return err
		}
		executionID, err := uuid.Parse(completion.ExecutionID)
		if err != nil {
			return fmt.Errorf("parse execution id %s: %w", completion.ExecutionID, err)
		}
		execution, err := c.executions.GetByID(ctx, executionID)
		if err == nil {
			return c.failExecution(ctx, execution, "Task failed")
		}
		return nil
	}

	return c.dispatchReadyNodes(ctx, completion.ExecutionID)
}

func (c *Coordinator) getAggregateStatus(ctx context.Context, executionID string) (string, error) {
	status, err := c.hot.GetAggregateStatus(ctx, executionID)
	if err != nil && !errors.Is(err, hotstore.ErrNotFound) {
		return "", err
	}
	return status, nil
}

func (c *Coordinator) getMetadata(ctx context.Context, executionID, key string) (string, error) {
	val, err := c.hot.GetMetadata(ctx, executionID, key)
	if err != nil && !errors.Is(err, hotstore.ErrNotFound) {
		return "", err
	}
	return val, nil
}

// dispatchReadyNodes finds PENDING nodes whose dependencies are all
// COMPLETED or SKIPPED, acquires the per-node dispatch lock, and either
// skips (condition false) or dispatches each one.
func (c *Coordinator) dispatchReadyNodes(ctx context.Context, executionID string) error {
	workflowID, err := c.getMetadata(ctx, executionID, "workflow_id")
	if err != nil {
		return fmt.Errorf("read workflow_id metadata: %w", err)
	}

	execID, parseErr := uuid.Parse(executionID)
	var execution *models.Execution
	if workflowID == "" {
		if parseErr != nil {
			return fmt.Errorf("parse execution id %s: %w", executionID, parseErr)
		}
		execution, err = c.executions.GetByID(ctx, execID)
		if err != nil {
			return nil // execution genuinely doesn't exist; nothing to dispatch
		}
		workflowID = execution.WorkflowID.String()
	}

	d, err := c.cache.Get(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load dag for workflow %s: %w", workflowID, err)
	}

	nodeStatuses, err := c.hot.GetAllNodeStatuses(ctx, executionID)
	if err != nil {
		return fmt.Errorf("read node statuses: %w", err)
	}

	var pending []string
	for nodeID, status := range nodeStatuses {
		if status == string(models.NodePending) {
			pending = append(pending, nodeID)
		}
	}
	sort.Strings(pending)

	if len(pending) == 0 {
		return c.maybeCompleteExecution(ctx, execID, parseErr, nodeStatuses)
	}

	outputs, err := c.hot.GetAllOutputs(ctx, executionID)
	if err != nil {
		return fmt.Errorf("read outputs: %w", err)
	}

	for _, nodeID := range pending {
		if err := c.tryDispatchNode(ctx, executionID, nodeID, d, nodeStatuses, outputs); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) maybeCompleteExecution(ctx context.Context, execID uuid.UUID, parseErr error, nodeStatuses map[string]string) error {
	allDone := true
	for _, status := range nodeStatuses {
		if status != string(models.NodeCompleted) && status != string(models.NodeSkipped) {
			allDone = false
			break
		}
	}
	if !allDone || parseErr != nil {
		return nil
	}

	execution, err := c.executions.GetByID(ctx, execID)
	if err != nil || execution.Status == models.ExecutionCompleted {
		return nil
	}

	timedOut, err := c.checkTimeout(ctx, execution)
	if err != nil {
		return err
	}
	if timedOut {
		return nil
	}

	now := time.Now()
	if err := c.executions.UpdateStatus(ctx, execID, models.ExecutionCompleted, now); err != nil {
		return fmt.Errorf("mark execution %s completed: %w", execID, err)
	}
	if err := c.hot.SetAggregateStatus(ctx, execID.String(), string(models.ExecutionCompleted)); err != nil {
		return fmt.Errorf("set aggregate status completed: %w", err)
	}
	return c.refreshTTL(ctx, execID.String())
}

func (c *Coordinator) tryDispatchNode(ctx context.Context, executionID, nodeID string, d *dag.DAG, nodeStatuses map[string]string, outputs template.Outputs) error {
	dependencies := d.Dependencies(nodeID)
	for _, dep := range dependencies {
		depStatus := nodeStatuses[dep]
		if depStatus != string(models.NodeCompleted) && depStatus != string(models.NodeSkipped) {
			return nil
		}
	}

	acquired, err := c.hot.AcquireDispatchLock(ctx, executionID, nodeID, c.holderID, c.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire dispatch lock for %s: %w", nodeID, err)
	}
	if !acquired {
		return nil
	}
	defer c.hot.ReleaseDispatchLock(ctx, executionID, nodeID, c.holderID)

	currentStatus, err := c.hot.GetNodeStatus(ctx, executionID, nodeID)
	if err != nil {
		return fmt.Errorf("re-check node %s status: %w", nodeID, err)
	}
	if currentStatus != string(models.NodePending) {
		return nil
	}

	node := d.Nodes[nodeID]

	if !template.EvaluateCondition(node.Condition, outputs) {
		if err := c.hot.SetNodeStatus(ctx, executionID, nodeID, string(models.NodeSkipped)); err != nil {
			return fmt.Errorf("mark node %s skipped: %w", nodeID, err)
		}
		if err := c.refreshTTL(ctx, executionID); err != nil {
			return err
		}
		_, err := c.broker.PublishCompletion(ctx, broker.Completion{
			ExecutionID: executionID,
			NodeID:      nodeID,
			Status:      string(models.NodeSkipped),
			CompletedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("publish skip completion for %s: %w", nodeID, err)
		}
		return nil
	}

	resolvedConfig := template.ResolveConfig(node.Config, outputs)
	configJSON, err := json.Marshal(resolvedConfig)
	if err != nil {
		return fmt.Errorf("marshal config for %s: %w", nodeID, err)
	}

	if err := c.hot.SetNodeStatus(ctx, executionID, nodeID, string(models.NodeRunning)); err != nil {
		return fmt.Errorf("mark node %s running: %w", nodeID, err)
	}
	if err := c.refreshTTL(ctx, executionID); err != nil {
		return err
	}
	_, err = c.broker.PublishTask(ctx, broker.Task{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Handler:     node.Handler,
		Config:      configJSON,
		RetryCount:  0,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish task for %s: %w", nodeID, err)
	}
	return nil
}

// CheckAllTimeouts scans the cold store for RUNNING executions and fails any
// whose timeout_seconds has elapsed. Intended to run on a fixed interval
// from a supervisor goroutine.
func (c *Coordinator) CheckAllTimeouts(ctx context.Context) error {
	running, err := c.executions.ListRunningOlderThan(ctx, time.Now(), 0)
	if err != nil {
		return fmt.Errorf("list running executions: %w", err)
	}
	for _, execution := range running {
		if _, err := c.checkTimeout(ctx, execution); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) checkTimeout(ctx context.Context, execution *models.Execution) (bool, error) {
	if execution.Status.IsTerminal() {
		return false, nil
	}
	if execution.TimeoutSeconds == nil || execution.StartedAt == nil {
		return false, nil
	}

	elapsed := time.Since(*execution.StartedAt).Seconds()
	if elapsed <= *execution.TimeoutSeconds {
		return false, nil
	}

	c.log.Warn("execution timed out", "execution_id", execution.ID, "elapsed_seconds", elapsed, "timeout_seconds", *execution.TimeoutSeconds)
	if err := c.failExecution(ctx, execution, fmt.Sprintf("workflow timed out after %vs", *execution.TimeoutSeconds)); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) failExecution(ctx context.Context, execution *models.Execution, message string) error {
	now := time.Now()
	if err := c.executions.UpdateStatus(ctx, execution.ID, models.ExecutionFailed, now); err != nil {
		return fmt.Errorf("mark execution %s failed: %w", execution.ID, err)
	}
	if err := c.hot.SetAggregateStatus(ctx, execution.ID.String(), string(models.ExecutionFailed)); err != nil {
		return fmt.Errorf("set aggregate status failed: %w", err)
	}

	c.log.Error("execution failed", "execution_id", execution.ID, "reason", message)

	nodeStatuses, err := c.hot.GetAllNodeStatuses(ctx, execution.ID.String())
	if err != nil {
		return fmt.Errorf("read node statuses on fail: %w", err)
	}
	for nodeID, status := range nodeStatuses {
		if status == string(models.NodePending) || status == string(models.NodeRunning) {
			if err := c.hot.SetNodeStatus(ctx, execution.ID.String(), nodeID, string(models.NodeFailed)); err != nil {
				return fmt.Errorf("mark node %s failed: %w", nodeID, err)
			}
		}
	}
	return c.refreshTTL(ctx, execution.ID.String())
}
