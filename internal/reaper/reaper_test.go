package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/logger"
	"github.com/lyzr/workflowcore/internal/testsupport"
)

func TestSweep_ResurrectsAndBuriesStaleTasks(t *testing.T) {
	b := testsupport.NewFakeBroker()
	b.StaleTasks = []broker.Delivery[broker.Task]{
		{ID: "1-0", Message: broker.Task{ID: "task-1", ExecutionID: "exec-1", NodeID: "a", Handler: "echo"}},
		{ID: "2-0", Message: broker.Task{ID: "task-2", ExecutionID: "exec-1", NodeID: "b", Handler: "echo"}},
	}

	log := logger.New("error", "text")
	r := New(b, log, time.Minute, 5*time.Minute, 10)

	require.NoError(t, r.Sweep(context.Background()))

	require.Len(t, b.Tasks, 2, "each claimed task is republished")
	assert.Equal(t, "task-1", b.Tasks[0].ID)
	assert.Equal(t, "task-2", b.Tasks[1].ID)
	assert.Empty(t, b.StaleTasks, "claimed entries are drained")
}

func TestSweep_NoStaleTasksIsANoop(t *testing.T) {
	b := testsupport.NewFakeBroker()
	log := logger.New("error", "text")
	r := New(b, log, time.Minute, 5*time.Minute, 10)

	require.NoError(t, r.Sweep(context.Background()))
	assert.Empty(t, b.Tasks)
}

func TestRun_StopsOnContextCancellation(t *testing.T) {
	b := testsupport.NewFakeBroker()
	log := logger.New("error", "text")
	r := New(b, log, time.Hour, 5*time.Minute, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
