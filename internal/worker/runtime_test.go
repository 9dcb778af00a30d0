package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/config"
	"github.com/lyzr/workflowcore/internal/handler"
	"github.com/lyzr/workflowcore/internal/logger"
	"github.com/lyzr/workflowcore/internal/models"
	"github.com/lyzr/workflowcore/internal/testsupport"
)

type failingHandler struct {
	name string
	err  error
}

func (h *failingHandler) Name() string { return h.name }
func (h *failingHandler) Process(ctx context.Context, config map[string]interface{}) (json.RawMessage, error) {
	return nil, h.err
}

func testConfig() config.WorkerConfig {
	return config.WorkerConfig{
		BatchSize:               10,
		BlockMS:                 time.Second,
		MaxRetries:              3,
		BackoffBase:             time.Millisecond,
		BackoffCap:              10 * time.Millisecond,
		BackoffJitterFraction:   0,
		AckOnMissingHandler:     false,
		CircuitFailureThreshold: 3,
		CircuitResetTimeout:     time.Minute,
	}
}

func newRuntime(t *testing.T, handlers *handler.Registry, dlqEnabled bool) (*Runtime, *testsupport.FakeHotStore, *testsupport.FakeBroker) {
	t.Helper()
	hot := testsupport.NewFakeHotStore()
	b := testsupport.NewFakeBroker()
	log := logger.New("error", "text")
	r := New(b, hot, handlers, nil, dlqEnabled, log, testConfig())
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r, hot, b
}

func TestProcessTask_SuccessPublishesCompletionAndMarksProcessed(t *testing.T) {
	handlers := handler.NewRegistry()
	handlers.Register(handler.NewEchoHandler())
	r, hot, b := newRuntime(t, handlers, true)

	task := broker.Task{ID: "task-1", ExecutionID: "exec-1", NodeID: "a", Handler: "echo", Config: []byte(`{"x":1}`)}
	err := r.ProcessTask(context.Background(), broker.Delivery[broker.Task]{ID: "1-0", Message: task})
	require.NoError(t, err)

	require.Len(t, b.Completions, 1)
	assert.Equal(t, "COMPLETED", b.Completions[0].Status)

	processed, err := hot.IsProcessed(context.Background(), "exec-1", "task-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestProcessTask_DuplicateTaskIsSkipped(t *testing.T) {
	handlers := handler.NewRegistry()
	handlers.Register(handler.NewEchoHandler())
	r, hot, b := newRuntime(t, handlers, true)

	_, err := hot.MarkProcessed(context.Background(), "exec-1", "task-1")
	require.NoError(t, err)

	task := broker.Task{ID: "task-1", ExecutionID: "exec-1", NodeID: "a", Handler: "echo"}
	err = r.ProcessTask(context.Background(), broker.Delivery[broker.Task]{ID: "1-0", Message: task})
	require.NoError(t, err)

	assert.Empty(t, b.Completions, "a duplicate task must not re-publish a completion")
}

func TestProcessTask_FailureBelowMaxRetriesRepublishesWithoutCompletion(t *testing.T) {
	handlers := handler.NewRegistry()
	handlers.Register(&failingHandler{name: "boom", err: errors.New("handler exploded")})
	r, _, b := newRuntime(t, handlers, true)

	task := broker.Task{ID: "task-1", ExecutionID: "exec-1", NodeID: "a", Handler: "boom"}
	err := r.ProcessTask(context.Background(), broker.Delivery[broker.Task]{ID: "1-0", Message: task})
	require.NoError(t, err)

	assert.Empty(t, b.Completions, "an in-budget retry must not report failure to the orchestrator")
	require.Len(t, b.Tasks, 1, "the task is republished for another attempt")
	assert.Equal(t, 1, b.Tasks[0].RetryCount)
}

func TestProcessTask_FailureExhaustsRetriesAndDeadLetters(t *testing.T) {
	handlers := handler.NewRegistry()
	handlers.Register(&failingHandler{name: "boom", err: errors.New("handler exploded")})
	r, _, b := newRuntime(t, handlers, true)

	task := broker.Task{ID: "task-1", ExecutionID: "exec-1", NodeID: "a", Handler: "boom"}
	for i := 0; i < testConfig().MaxRetries; i++ {
		err := r.ProcessTask(context.Background(), broker.Delivery[broker.Task]{ID: "1-0", Message: task})
		require.NoError(t, err)
	}

	require.Len(t, b.DLQ, 1, "retries exhausted must dead-letter the task")
	require.Len(t, b.Completions, 1, "a failure completion is published only after dead-lettering")
	assert.Equal(t, "FAILED", b.Completions[0].Status)

	var entry models.DLQEntry
	require.NoError(t, json.Unmarshal(b.DLQ[0], &entry))
	require.NotNil(t, entry.ErrorDetail)
	assert.NotEqual(t, "boom", entry.ErrorDetail.ErrorCode, "error code must not just echo the handler name")
	assert.Equal(t, "UnknownError", entry.ErrorDetail.ErrorCode, "a plain, untagged handler error falls back to the generic code")
}

func TestProcessTask_UnknownHandlerIsDroppedNotAcked(t *testing.T) {
	handlers := handler.NewRegistry()
	r, _, b := newRuntime(t, handlers, true)

	task := broker.Task{ID: "task-1", ExecutionID: "exec-1", NodeID: "a", Handler: "missing"}
	err := r.ProcessTask(context.Background(), broker.Delivery[broker.Task]{ID: "1-0", Message: task})
	require.NoError(t, err)
	assert.Empty(t, b.Completions)
	assert.Empty(t, b.Tasks)
}

func TestProcessTask_DLQDisabledFailsImmediately(t *testing.T) {
	handlers := handler.NewRegistry()
	handlers.Register(&failingHandler{name: "boom", err: errors.New("handler exploded")})
	r, _, b := newRuntime(t, handlers, false)

	task := broker.Task{ID: "task-1", ExecutionID: "exec-1", NodeID: "a", Handler: "boom"}
	err := r.ProcessTask(context.Background(), broker.Delivery[broker.Task]{ID: "1-0", Message: task})
	require.NoError(t, err)

	assert.Empty(t, b.DLQ, "DLQ disabled means no dead-letter record")
	require.Len(t, b.Completions, 1)
	assert.Equal(t, "FAILED", b.Completions[0].Status)
}

func TestBackoffDelay_GrowsExponentiallyAndCaps(t *testing.T) {
	r, _, _ := newRuntime(t, handler.NewRegistry(), true)
	r.cfg.BackoffJitterFraction = 0

	assert.Equal(t, r.cfg.BackoffBase, r.backoffDelay(1))
	assert.Equal(t, 2*r.cfg.BackoffBase, r.backoffDelay(2))
	assert.Equal(t, r.cfg.BackoffCap, r.backoffDelay(10), "delay must never exceed the configured cap")
}
