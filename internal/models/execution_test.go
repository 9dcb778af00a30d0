package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeState_LegalTransitions(t *testing.T) {
	now := time.Now()

	n := &NodeState{Status: NodePending}
	require.NoError(t, n.TransitionTo(NodeRunning, now))
	assert.Equal(t, NodeRunning, n.Status)
	require.NotNil(t, n.StartedAt)

	require.NoError(t, n.TransitionTo(NodeCompleted, now))
	assert.Equal(t, NodeCompleted, n.Status)
	require.NotNil(t, n.CompletedAt)
}

func TestNodeState_IllegalTransitionFails(t *testing.T) {
	n := &NodeState{Status: NodePending}
	err := n.TransitionTo(NodeCompleted, time.Now())
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, NodePending, invalid.From)
	assert.Equal(t, NodeCompleted, invalid.To)
}

func TestNodeState_TerminalIsAbsorbing(t *testing.T) {
	n := &NodeState{Status: NodeCompleted}
	err := n.TransitionTo(NodeRunning, time.Now())
	assert.Error(t, err)
}

func TestNodeState_SameStateTransitionFails(t *testing.T) {
	n := &NodeState{Status: NodeRunning}
	err := n.TransitionTo(NodeRunning, time.Now())
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, NodeRunning, invalid.From)
	assert.Equal(t, NodeRunning, invalid.To)
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	assert.True(t, ExecutionCompleted.IsTerminal())
	assert.True(t, ExecutionFailed.IsTerminal())
	assert.True(t, ExecutionCancelled.IsTerminal())
	assert.False(t, ExecutionPending.IsTerminal())
	assert.False(t, ExecutionRunning.IsTerminal())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorTransient, ClassifyError("TimeoutError", "dial tcp: i/o timeout"))
	assert.Equal(t, ErrorValidation, ClassifyError("ValueError", "invalid payload"))
	assert.Equal(t, ErrorResource, ClassifyError("RateLimitError", "quota exceeded"))
	// "connection" is a transient-pattern substring, so an infra-coded error
	// whose name also hints at connectivity classifies as TRANSIENT first —
	// mirroring original_source's _classify_exception, which checks transient
	// patterns before infrastructure ones too.
	assert.Equal(t, ErrorTransient, ClassifyError("RedisConnectionError", "unexpected EOF"))
	assert.Equal(t, ErrorInfrastructure, ClassifyError("PostgresAuthError", "password authentication failed"))
	assert.Equal(t, ErrorUnknown, ClassifyError("WeirdError", "something odd"))
}
