package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowcore/internal/logger"
)

func newTestBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	b := New(rdb, logger.New("error", "text"))
	require.NoError(t, b.EnsureGroups(context.Background()))
	return b
}

func TestPublishAndReadTask(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	task := Task{ExecutionID: "exec-1", NodeID: "node-a", Handler: "echo", RetryCount: 0}
	id, err := b.PublishTask(ctx, task)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	deliveries, err := b.ReadTasks(ctx, "worker-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, task.ExecutionID, deliveries[0].Message.ExecutionID)
	require.Equal(t, task.NodeID, deliveries[0].Message.NodeID)

	require.NoError(t, b.AckTask(ctx, deliveries[0].ID))
}

func TestReadTasks_NoMessagesReturnsEmpty(t *testing.T) {
	b := newTestBroker(t)
	deliveries, err := b.ReadTasks(context.Background(), "worker-1", 10, 0)
	require.NoError(t, err)
	require.Empty(t, deliveries)
}

func TestPublishAndReadCompletion(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	completion := Completion{ExecutionID: "exec-1", NodeID: "node-a", Status: "COMPLETED", CompletedAt: time.Unix(0, 0)}
	_, err := b.PublishCompletion(ctx, completion)
	require.NoError(t, err)

	deliveries, err := b.ReadCompletions(ctx, "orchestrator-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, "COMPLETED", deliveries[0].Message.Status)
}

func TestPublishDLQ(t *testing.T) {
	b := newTestBroker(t)
	payload, err := json.Marshal(map[string]string{"task_id": "t-1"})
	require.NoError(t, err)

	id, err := b.PublishDLQ(context.Background(), payload)
	require.NoError(t, err)
	require.NotEmpty(t, id)
}
