package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/dagcache"
	"github.com/lyzr/workflowcore/internal/logger"
	"github.com/lyzr/workflowcore/internal/models"
	"github.com/lyzr/workflowcore/internal/testsupport"
	"github.com/lyzr/workflowcore/internal/usecase"
)

type fixture struct {
	coordinator *Coordinator
	workflows   *testsupport.FakeWorkflowRepository
	executions  *testsupport.FakeExecutionRepository
	hot         *testsupport.FakeHotStore
	broker      *testsupport.FakeBroker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	workflows := testsupport.NewFakeWorkflowRepository()
	executions := testsupport.NewFakeExecutionRepository()
	hot := testsupport.NewFakeHotStore()
	b := testsupport.NewFakeBroker()

	cache, err := dagcache.New(16, time.Minute, NewDAGLoader(workflows))
	require.NoError(t, err)

	log := logger.New("error", "text")
	coordinator := New(workflows, executions, hot, b, cache, log, 30*time.Second, time.Hour)

	return &fixture{coordinator: coordinator, workflows: workflows, executions: executions, hot: hot, broker: b}
}

func (f *fixture) submitAndTrigger(t *testing.T, spec string) string {
	t.Helper()
	submitter := usecase.NewSubmitter(f.workflows, f.executions, f.hot, time.Hour)
	result, err := submitter.Submit(context.Background(), "fixture", []byte(spec), nil)
	require.NoError(t, err)

	trigger := usecase.NewTrigger(f.workflows, f.executions, f.hot, time.Hour, f.broker)
	require.NoError(t, trigger.Run(context.Background(), result.ExecutionID, nil))

	return result.ExecutionID.String()
}

func TestHandleCompletion_LinearChainDispatchesNext(t *testing.T) {
	f := newFixture(t)
	executionID := f.submitAndTrigger(t, twoNodeSpecOrch)

	require.Len(t, f.broker.Tasks, 1)
	assert.Equal(t, "a", f.broker.Tasks[0].NodeID)

	err := f.coordinator.HandleCompletion(context.Background(), mkCompletion(executionID, "a", "COMPLETED", nil))
	require.NoError(t, err)

	require.Len(t, f.broker.Tasks, 2)
	assert.Equal(t, "b", f.broker.Tasks[1].NodeID)
}

func TestHandleCompletion_FanInWaitsForBothParents(t *testing.T) {
	f := newFixture(t)
	executionID := f.submitAndTrigger(t, fanInSpec)

	require.Len(t, f.broker.Tasks, 2, "both roots dispatch immediately")

	err := f.coordinator.HandleCompletion(context.Background(), mkCompletion(executionID, "a", "COMPLETED", nil))
	require.NoError(t, err)
	require.Len(t, f.broker.Tasks, 2, "child must wait for both parents")

	err = f.coordinator.HandleCompletion(context.Background(), mkCompletion(executionID, "b", "COMPLETED", nil))
	require.NoError(t, err)
	require.Len(t, f.broker.Tasks, 3, "child dispatches once both parents are done")
	assert.Equal(t, "c", f.broker.Tasks[2].NodeID)
}

func TestHandleCompletion_NodeFailureFailsExecution(t *testing.T) {
	f := newFixture(t)
	executionID := f.submitAndTrigger(t, twoNodeSpecOrch)

	err := f.coordinator.HandleCompletion(context.Background(), mkCompletion(executionID, "a", "FAILED", nil))
	require.NoError(t, err)

	status, err := f.hot.GetAggregateStatus(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, string(models.ExecutionFailed), status)

	// A late completion after failure must be a no-op.
	err = f.coordinator.HandleCompletion(context.Background(), mkCompletion(executionID, "b", "COMPLETED", nil))
	require.NoError(t, err)
	require.Len(t, f.broker.Tasks, 1, "no further dispatch after the execution failed")
}

func TestHandleCompletion_AllNodesDoneCompletesExecution(t *testing.T) {
	f := newFixture(t)
	executionID := f.submitAndTrigger(t, twoNodeSpecOrch)

	require.NoError(t, f.coordinator.HandleCompletion(context.Background(), mkCompletion(executionID, "a", "COMPLETED", nil)))
	require.NoError(t, f.coordinator.HandleCompletion(context.Background(), mkCompletion(executionID, "b", "COMPLETED", nil)))

	status, err := f.hot.GetAggregateStatus(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, string(models.ExecutionCompleted), status)
}

func mkCompletion(executionID, nodeID, status string, output []byte) broker.Completion {
	return broker.Completion{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Status:      status,
		Output:      output,
		CompletedAt: time.Now(),
	}
}

const twoNodeSpecOrch = `{"nodes":[{"id":"a","handler":"echo"},{"id":"b","handler":"echo","dependencies":["a"]}]}`
const fanInSpec = `{"nodes":[{"id":"a","handler":"echo"},{"id":"b","handler":"echo"},{"id":"c","handler":"echo","dependencies":["a","b"]}]}`
