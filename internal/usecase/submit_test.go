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

const twoNodeSpec = `{"nodes":[{"id":"a","handler":"echo"},{"id":"b","handler":"echo","dependencies":["a"]}]}`

func TestSubmit_PersistsAndSeedsHotStore(t *testing.T) {
	workflows := testsupport.NewFakeWorkflowRepository()
	executions := testsupport.NewFakeExecutionRepository()
	hot := testsupport.NewFakeHotStore()

	submitter := NewSubmitter(workflows, executions, hot, time.Hour)
	result, err := submitter.Submit(context.Background(), "demo", []byte(twoNodeSpec), nil)
	require.NoError(t, err)
	require.NotEqual(t, result.WorkflowID, result.ExecutionID)

	wf, err := workflows.GetByID(context.Background(), result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "demo", wf.Name)

	exec, err := executions.GetByID(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPending, exec.Status)
	assert.Len(t, exec.NodeStates, 2)

	status, err := hot.GetAggregateStatus(context.Background(), result.ExecutionID.String())
	require.NoError(t, err)
	assert.Equal(t, string(models.ExecutionPending), status)

	nodeStatus, err := hot.GetNodeStatus(context.Background(), result.ExecutionID.String(), "a")
	require.NoError(t, err)
	assert.Equal(t, string(models.NodePending), nodeStatus)
}

func TestSubmit_RejectsInvalidDAG(t *testing.T) {
	submitter := NewSubmitter(
		testsupport.NewFakeWorkflowRepository(),
		testsupport.NewFakeExecutionRepository(),
		testsupport.NewFakeHotStore(),
		time.Hour,
	)
	_, err := submitter.Submit(context.Background(), "bad", []byte(`{"nodes":[]}`), nil)
	assert.Error(t, err)
}
