// Package testsupport provides in-memory fakes of the storage and broker
// interfaces so orchestration logic can be unit tested without Redis or
// Postgres.
package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/models"
	"github.com/lyzr/workflowcore/internal/template"
)

// FakeWorkflowRepository is an in-memory WorkflowRepository.
type FakeWorkflowRepository struct {
	mu   sync.Mutex
	data map[uuid.UUID]*models.Workflow
}

// NewFakeWorkflowRepository builds an empty FakeWorkflowRepository.
func NewFakeWorkflowRepository() *FakeWorkflowRepository {
	return &FakeWorkflowRepository{data: make(map[uuid.UUID]*models.Workflow)}
}

func (f *FakeWorkflowRepository) Create(ctx context.Context, wf *models.Workflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[wf.ID] = wf
	return nil
}

func (f *FakeWorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.data[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s not found", id)
	}
	return wf, nil
}

// FakeExecutionRepository is an in-memory ExecutionRepository.
type FakeExecutionRepository struct {
	mu   sync.Mutex
	data map[uuid.UUID]*models.Execution
}

// NewFakeExecutionRepository builds an empty FakeExecutionRepository.
func NewFakeExecutionRepository() *FakeExecutionRepository {
	return &FakeExecutionRepository{data: make(map[uuid.UUID]*models.Execution)}
}

func (f *FakeExecutionRepository) Create(ctx context.Context, exec *models.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[exec.ID] = exec
	return nil
}

func (f *FakeExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exec, ok := f.data[id]
	if !ok {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	clone := *exec
	return &clone, nil
}

func (f *FakeExecutionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	exec, ok := f.data[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	exec.Status = status
	switch status {
	case models.ExecutionRunning:
		exec.StartedAt = &at
	case models.ExecutionCompleted, models.ExecutionFailed, models.ExecutionCancelled:
		exec.CompletedAt = &at
	}
	return nil
}

func (f *FakeExecutionRepository) UpdateNodeStates(ctx context.Context, id uuid.UUID, states map[string]*models.NodeState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	exec, ok := f.data[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	exec.NodeStates = states
	return nil
}

func (f *FakeExecutionRepository) ListRunningOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Execution
	for _, exec := range f.data {
		if exec.Status == models.ExecutionRunning && exec.StartedAt != nil && exec.StartedAt.Before(cutoff) {
			clone := *exec
			out = append(out, &clone)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *FakeExecutionRepository) InsertDLQEntry(ctx context.Context, entry *models.DLQEntry) error {
	return nil
}

// FakeHotStore is an in-memory hotstore.Store.
type FakeHotStore struct {
	mu        sync.Mutex
	statuses  map[string]map[string]string
	outputs   map[string]map[string]json.RawMessage
	aggregate map[string]string
	metadata  map[string]map[string]string
	locks     map[string]string
	retries   map[string]int64
	processed map[string]map[string]bool
}

// NewFakeHotStore builds an empty FakeHotStore.
func NewFakeHotStore() *FakeHotStore {
	return &FakeHotStore{
		statuses:  make(map[string]map[string]string),
		outputs:   make(map[string]map[string]json.RawMessage),
		aggregate: make(map[string]string),
		metadata:  make(map[string]map[string]string),
		locks:     make(map[string]string),
		retries:   make(map[string]int64),
		processed: make(map[string]map[string]bool),
	}
}

func (f *FakeHotStore) SetNodeStatus(ctx context.Context, executionID, nodeID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses[executionID] == nil {
		f.statuses[executionID] = make(map[string]string)
	}
	f.statuses[executionID][nodeID] = status
	return nil
}

func (f *FakeHotStore) GetNodeStatus(ctx context.Context, executionID, nodeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[executionID][nodeID], nil
}

func (f *FakeHotStore) SetNodeOutput(ctx context.Context, executionID, nodeID string, output json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outputs[executionID] == nil {
		f.outputs[executionID] = make(map[string]json.RawMessage)
	}
	f.outputs[executionID][nodeID] = output
	return nil
}

func (f *FakeHotStore) GetNodeOutput(ctx context.Context, executionID, nodeID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[executionID][nodeID], nil
}

func (f *FakeHotStore) SetAggregateStatus(ctx context.Context, executionID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggregate[executionID] = status
	return nil
}

func (f *FakeHotStore) GetAggregateStatus(ctx context.Context, executionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aggregate[executionID], nil
}

func (f *FakeHotStore) SetMetadata(ctx context.Context, executionID, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metadata[executionID] == nil {
		f.metadata[executionID] = make(map[string]string)
	}
	f.metadata[executionID][key] = value
	return nil
}

func (f *FakeHotStore) GetMetadata(ctx context.Context, executionID, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata[executionID][key], nil
}

func (f *FakeHotStore) ExpireExecution(ctx context.Context, executionID string, ttl time.Duration) error {
	return nil
}

func (f *FakeHotStore) AcquireDispatchLock(ctx context.Context, executionID, nodeID, holder string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := executionID + ":" + nodeID
	if _, held := f.locks[key]; held {
		return false, nil
	}
	f.locks[key] = holder
	return true, nil
}

func (f *FakeHotStore) ReleaseDispatchLock(ctx context.Context, executionID, nodeID, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := executionID + ":" + nodeID
	if f.locks[key] == holder {
		delete(f.locks, key)
	}
	return nil
}

func (f *FakeHotStore) IncrementRetryCount(ctx context.Context, executionID, nodeID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := executionID + ":" + nodeID
	f.retries[key]++
	return f.retries[key], nil
}

func (f *FakeHotStore) GetRetryCount(ctx context.Context, executionID, nodeID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retries[executionID+":"+nodeID], nil
}

func (f *FakeHotStore) MarkProcessed(ctx context.Context, executionID, taskID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processed[executionID] == nil {
		f.processed[executionID] = make(map[string]bool)
	}
	if f.processed[executionID][taskID] {
		return false, nil
	}
	f.processed[executionID][taskID] = true
	return true, nil
}

func (f *FakeHotStore) IsProcessed(ctx context.Context, executionID, taskID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[executionID][taskID], nil
}

func (f *FakeHotStore) GetAllNodeStatuses(ctx context.Context, executionID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.statuses[executionID]))
	for k, v := range f.statuses[executionID] {
		out[k] = v
	}
	return out, nil
}

func (f *FakeHotStore) GetAllOutputs(ctx context.Context, executionID string) (template.Outputs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(template.Outputs)
	for nodeID, raw := range f.outputs[executionID] {
		var decoded map[string]interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			var scalar interface{}
			if jsonErr := json.Unmarshal(raw, &scalar); jsonErr == nil {
				out[nodeID] = map[string]interface{}{"value": scalar}
				continue
			}
			return nil, err
		}
		out[nodeID] = decoded
	}
	return out, nil
}

// FakeBroker is an in-memory broker.Broker that records published messages
// instead of delivering them over Redis Streams.
type FakeBroker struct {
	mu          sync.Mutex
	Tasks       []broker.Task
	Completions []broker.Completion
	DLQ         []json.RawMessage

	// StaleTasks is drained (returned then cleared) by the next
	// ClaimStaleTasks call, letting tests simulate a reaper sweep that
	// reclaims entries idle in the pending entry list.
	StaleTasks []broker.Delivery[broker.Task]
}

// NewFakeBroker builds an empty FakeBroker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{}
}

func (f *FakeBroker) EnsureGroups(ctx context.Context) error { return nil }

func (f *FakeBroker) PublishTask(ctx context.Context, task broker.Task) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tasks = append(f.Tasks, task)
	return fmt.Sprintf("%d-0", len(f.Tasks)), nil
}

func (f *FakeBroker) ReadTasks(ctx context.Context, consumer string, count int64, block time.Duration) ([]broker.Delivery[broker.Task], error) {
	return nil, nil
}

func (f *FakeBroker) AckTask(ctx context.Context, id string) error { return nil }

func (f *FakeBroker) ClaimStaleTasks(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]broker.Delivery[broker.Task], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claimed := f.StaleTasks
	f.StaleTasks = nil
	return claimed, nil
}

func (f *FakeBroker) PendingTaskCount(ctx context.Context) (int64, error) { return 0, nil }

func (f *FakeBroker) PublishCompletion(ctx context.Context, completion broker.Completion) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Completions = append(f.Completions, completion)
	return fmt.Sprintf("%d-0", len(f.Completions)), nil
}

func (f *FakeBroker) ReadCompletions(ctx context.Context, consumer string, count int64, block time.Duration) ([]broker.Delivery[broker.Completion], error) {
	return nil, nil
}

func (f *FakeBroker) AckCompletion(ctx context.Context, id string) error { return nil }

func (f *FakeBroker) PublishDLQ(ctx context.Context, payload json.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DLQ = append(f.DLQ, payload)
	return fmt.Sprintf("dlq-%d-0", len(f.DLQ)), nil
}
