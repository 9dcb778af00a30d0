package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowcore/internal/models"
	"github.com/lyzr/workflowcore/internal/testsupport"
)

func setupTriggerFixture(t *testing.T, spec string, timeout *float64) (*Trigger, *testsupport.FakeExecutionRepository, *testsupport.FakeHotStore, *testsupport.FakeBroker, *SubmitResult) {
	t.Helper()
	workflows := testsupport.NewFakeWorkflowRepository()
	executions := testsupport.NewFakeExecutionRepository()
	hot := testsupport.NewFakeHotStore()
	b := testsupport.NewFakeBroker()

	submitter := NewSubmitter(workflows, executions, hot, time.Hour)
	result, err := submitter.Submit(context.Background(), "demo", []byte(spec), timeout)
	require.NoError(t, err)

	trigger := NewTrigger(workflows, executions, hot, time.Hour, b)
	return trigger, executions, hot, b, result
}

func TestTrigger_DispatchesRootNodesAndMarksRunning(t *testing.T) {
	trigger, executions, hot, b, result := setupTriggerFixture(t, twoNodeSpec, nil)

	err := trigger.Run(context.Background(), result.ExecutionID, nil)
	require.NoError(t, err)

	exec, err := executions.GetByID(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionRunning, exec.Status)
	require.NotNil(t, exec.StartedAt)

	require.Len(t, b.Tasks, 1, "only the root node (a) should be dispatched")
	assert.Equal(t, "a", b.Tasks[0].NodeID)

	status, err := hot.GetNodeStatus(context.Background(), result.ExecutionID.String(), "a")
	require.NoError(t, err)
	assert.Equal(t, string(models.NodeRunning), status)

	aggregate, err := hot.GetAggregateStatus(context.Background(), result.ExecutionID.String())
	require.NoError(t, err)
	assert.Equal(t, string(models.ExecutionRunning), aggregate)
}

func TestTrigger_ResolvesParamsIntoConfig(t *testing.T) {
	spec := `{"nodes":[{"id":"a","handler":"echo","config":{"greeting":"{{ params.name }}"}}]}`
	trigger, _, _, b, result := setupTriggerFixture(t, spec, nil)

	err := trigger.Run(context.Background(), result.ExecutionID, map[string]interface{}{"name": "world"})
	require.NoError(t, err)

	require.Len(t, b.Tasks, 1)
	assert.JSONEq(t, `{"greeting":"world"}`, string(b.Tasks[0].Config))
}

func TestTrigger_UnknownExecutionFails(t *testing.T) {
	trigger, _, _, _, _ := setupTriggerFixture(t, twoNodeSpec, nil)
	err := trigger.Run(context.Background(), mustRandomUUID(), nil)
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}
