package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowcore/internal/models"
)

func TestCheckTimeout_FailsElapsedExecution(t *testing.T) {
	f := newFixture(t)
	executionID := f.submitAndTrigger(t, twoNodeSpecOrch)

	execUUID := parseUUID(t, executionID)
	execution, err := f.executions.GetByID(context.Background(), execUUID)
	require.NoError(t, err)

	timeout := 1.0
	execution.TimeoutSeconds = &timeout
	past := time.Now().Add(-time.Hour)
	execution.StartedAt = &past
	require.NoError(t, f.executions.UpdateStatus(context.Background(), execUUID, models.ExecutionRunning, past))
	// re-fetch and patch timeout directly since UpdateStatus doesn't touch it
	refetched, err := f.executions.GetByID(context.Background(), execUUID)
	require.NoError(t, err)
	refetched.TimeoutSeconds = &timeout
	refetched.StartedAt = &past

	timedOut, err := f.coordinator.checkTimeout(context.Background(), refetched)
	require.NoError(t, err)
	assert.True(t, timedOut)

	status, err := f.hot.GetAggregateStatus(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, string(models.ExecutionFailed), status)
}

func TestCheckTimeout_WithinBudgetLeavesExecutionRunning(t *testing.T) {
	f := newFixture(t)
	executionID := f.submitAndTrigger(t, twoNodeSpecOrch)

	execUUID := parseUUID(t, executionID)
	execution, err := f.executions.GetByID(context.Background(), execUUID)
	require.NoError(t, err)

	timeout := 3600.0
	execution.TimeoutSeconds = &timeout

	timedOut, err := f.coordinator.checkTimeout(context.Background(), execution)
	require.NoError(t, err)
	assert.False(t, timedOut)
}

func TestCheckTimeout_TerminalExecutionSkipped(t *testing.T) {
	f := newFixture(t)
	executionID := f.submitAndTrigger(t, twoNodeSpecOrch)
	execUUID := parseUUID(t, executionID)

	execution, err := f.executions.GetByID(context.Background(), execUUID)
	require.NoError(t, err)
	execution.Status = models.ExecutionCompleted
	timeout := 0.001
	execution.TimeoutSeconds = &timeout
	past := time.Now().Add(-time.Hour)
	execution.StartedAt = &past

	timedOut, err := f.coordinator.checkTimeout(context.Background(), execution)
	require.NoError(t, err)
	assert.False(t, timedOut, "a terminal execution is never timed out")
}
