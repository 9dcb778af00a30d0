// Package worker consumes dispatched tasks from the broker, executes them
// against a registered handler, and reports the outcome back to the
// orchestrator — with idempotency, circuit-breaker-guarded invocation, and
// exponential-backoff retry before a task is dead-lettered.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/circuitbreaker"
	"github.com/lyzr/workflowcore/internal/config"
	"github.com/lyzr/workflowcore/internal/handler"
	"github.com/lyzr/workflowcore/internal/hotstore"
	"github.com/lyzr/workflowcore/internal/logger"
	"github.com/lyzr/workflowcore/internal/models"
)

// Runtime consumes tasks from the broker's task stream and dispatches each
// to its registered handler, applying idempotency, retry/backoff and
// circuit-breaking around the call.
type Runtime struct {
	broker     broker.Broker
	hot        hotstore.Store
	handlers   *handler.Registry
	breakers   *circuitbreaker.Registry
	dlq        DLQRepository
	dlqEnabled bool
	log        *logger.Logger
	cfg        config.WorkerConfig

	consumerName string

	clock func() time.Time
	sleep func(context.Context, time.Duration) error
	rng   *rand.Rand
}

// New builds a Runtime. dlq may be nil, in which case dead-lettered tasks
// are still published to the DLQ stream and as failure completions but are
// not inserted into the cold store — callers that want durable DLQ records
// must pass a cold-store-backed DLQRepository.
func New(b broker.Broker, hot hotstore.Store, handlers *handler.Registry, dlq DLQRepository, dlqEnabled bool, log *logger.Logger, cfg config.WorkerConfig) *Runtime {
	return &Runtime{
		broker:       b,
		hot:          hot,
		handlers:     handlers,
		breakers:     circuitbreaker.NewRegistry(cfg.CircuitFailureThreshold, cfg.CircuitResetTimeout, 1),
		dlq:          dlq,
		dlqEnabled:   dlqEnabled,
		log:          log,
		cfg:          cfg,
		consumerName: fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		clock:        time.Now,
		sleep:        sleepContext,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls the task stream until ctx is cancelled, fanning each batch of
// deliveries out to concurrent goroutines — the Go analogue of the
// original's asyncio.gather-per-batch loop. Once ctx is cancelled, tasks
// already in flight get cfg.DrainTimeout to finish before their context is
// cancelled too.
func (r *Runtime) Run(ctx context.Context) error {
	r.log.Info("worker starting", "consumer", r.consumerName)
	if err := r.broker.EnsureGroups(ctx); err != nil {
		return fmt.Errorf("ensure consumer groups: %w", err)
	}

	handlerCtx, cancelHandlers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHandlers()
	stopDrainTimer := context.AfterFunc(ctx, func() { time.AfterFunc(r.cfg.DrainTimeout, cancelHandlers) })
	defer stopDrainTimer()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("worker shutdown complete")
			return nil
		default:
		}

		deliveries, err := r.broker.ReadTasks(ctx, r.consumerName, r.cfg.BatchSize, r.cfg.BlockMS)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("worker main loop error", "error", err)
			if err := r.sleep(ctx, time.Second); err != nil {
				return nil
			}
			continue
		}
		if len(deliveries) == 0 {
			continue
		}

		var wg sync.WaitGroup
		for _, d := range deliveries {
			wg.Add(1)
			go func(d broker.Delivery[broker.Task]) {
				defer wg.Done()
				if err := r.ProcessTask(handlerCtx, d); err != nil {
					r.log.Error("process task failed", "execution_id", d.Message.ExecutionID, "node_id", d.Message.NodeID, "error", err)
				}
			}(d)
		}
		wg.Wait()
	}
}

// ProcessTask executes exactly one delivered task end to end: idempotency
// check, handler dispatch, and either a completion publish or a
// retry/dead-letter decision.
func (r *Runtime) ProcessTask(ctx context.Context, delivery broker.Delivery[broker.Task]) error {
	task := delivery.Message
	log := r.log.WithExecutionID(task.ExecutionID).WithNodeID(task.NodeID)

	processed, err := r.hot.IsProcessed(ctx, task.ExecutionID, task.ID)
	if err != nil {
		return fmt.Errorf("check idempotency: %w", err)
	}
	if processed {
		log.Info("skipping duplicate task", "task_id", task.ID)
		return r.broker.AckTask(ctx, delivery.ID)
	}

	h, ok := r.handlers.Get(task.Handler)
	if !ok {
		log.Error("handler not found", "handler", task.Handler)
		if r.cfg.AckOnMissingHandler {
			return r.broker.AckTask(ctx, delivery.ID)
		}
		return nil
	}

	breaker := r.breakers.Get(task.Handler)

	var output json.RawMessage
	var procErr error
	if !breaker.CanExecute() {
		procErr = models.NewCodedError("CircuitBreakerOpen", fmt.Errorf("circuit breaker open for handler %s", task.Handler))
	} else {
		var nodeConfig map[string]interface{}
		if len(task.Config) > 0 {
			if err := json.Unmarshal(task.Config, &nodeConfig); err != nil {
				procErr = models.NewCodedError("TaskConfigError", fmt.Errorf("decode task config: %w", err))
			}
		}
		if procErr == nil {
			output, procErr = h.Process(ctx, nodeConfig)
			if procErr != nil && models.ErrorCodeFor(procErr) == "UnknownError" {
				switch {
				case errors.Is(procErr, context.DeadlineExceeded):
					procErr = models.NewCodedError("TimeoutError", procErr)
				case errors.Is(procErr, context.Canceled):
					procErr = models.NewCodedError("ContextCanceled", procErr)
				}
			}
		}
		if procErr != nil {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}
	}

	if procErr == nil {
		return r.succeed(ctx, log, delivery, task, output)
	}
	return r.fail(ctx, log, delivery, task, procErr)
}

func (r *Runtime) succeed(ctx context.Context, log *logger.Logger, delivery broker.Delivery[broker.Task], task broker.Task, output json.RawMessage) error {
	completion := broker.Completion{
		ExecutionID: task.ExecutionID,
		NodeID:      task.NodeID,
		Status:      string(models.NodeCompleted),
		Output:      output,
		CompletedAt: r.clock(),
	}
	if _, err := r.broker.PublishCompletion(ctx, completion); err != nil {
		return fmt.Errorf("publish success completion: %w", err)
	}
	if _, err := r.hot.MarkProcessed(ctx, task.ExecutionID, task.ID); err != nil {
		return fmt.Errorf("mark task processed: %w", err)
	}
	log.Info("task completed", "handler", task.Handler)
	return r.broker.AckTask(ctx, delivery.ID)
}

func (r *Runtime) fail(ctx context.Context, log *logger.Logger, delivery broker.Delivery[broker.Task], task broker.Task, procErr error) error {
	log.Error("task failed", "error", procErr.Error())

	if !r.dlqEnabled {
		return r.publishFailureAndAck(ctx, delivery, task, procErr)
	}

	retryCount, err := r.hot.IncrementRetryCount(ctx, task.ExecutionID, task.NodeID)
	if err != nil {
		return fmt.Errorf("increment retry count: %w", err)
	}

	if int(retryCount) < r.cfg.MaxRetries {
		delay := r.backoffDelay(int(retryCount))
		log.Info("applying retry backoff", "delay", delay, "retry_count", retryCount, "max_retries", r.cfg.MaxRetries)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		task.RetryCount = int(retryCount)
		if _, err := r.broker.PublishTask(ctx, task); err != nil {
			return fmt.Errorf("republish task for retry: %w", err)
		}
		return r.broker.AckTask(ctx, delivery.ID)
	}

	if err := r.moveToDLQ(ctx, task, procErr, int(retryCount)); err != nil {
		return err
	}
	log.Warn("task moved to dlq", "retry_count", retryCount)
	return r.publishFailureAndAck(ctx, delivery, task, procErr)
}

func (r *Runtime) publishFailureAndAck(ctx context.Context, delivery broker.Delivery[broker.Task], task broker.Task, procErr error) error {
	completion := broker.Completion{
		ExecutionID: task.ExecutionID,
		NodeID:      task.NodeID,
		Status:      string(models.NodeFailed),
		ErrorMsg:    procErr.Error(),
		CompletedAt: r.clock(),
	}
	if _, err := r.broker.PublishCompletion(ctx, completion); err != nil {
		return fmt.Errorf("publish failure completion: %w", err)
	}
	return r.broker.AckTask(ctx, delivery.ID)
}

func (r *Runtime) moveToDLQ(ctx context.Context, task broker.Task, procErr error, retryCount int) error {
	entry := &models.DLQEntry{
		ID:                uuid.New().String(),
		TaskID:            task.ID,
		ExecutionID:       task.ExecutionID,
		NodeID:            task.NodeID,
		Handler:           task.Handler,
		Config:            task.Config,
		ErrorMessage:      procErr.Error(),
		RetryCount:        retryCount,
		OriginalTimestamp: task.CreatedAt,
		FailedAt:          r.clock(),
	}
	errorCode := models.ErrorCodeFor(procErr)
	entry.ErrorDetail = &models.ErrorDetail{
		Category:  models.ClassifyError(errorCode, procErr.Error()),
		ErrorCode: errorCode,
		Timestamp: entry.FailedAt,
	}

	if r.dlq != nil {
		if err := r.dlq.InsertDLQEntry(ctx, entry); err != nil {
			return fmt.Errorf("insert dlq entry: %w", err)
		}
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if _, err := r.broker.PublishDLQ(ctx, payload); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}
	return nil
}

// backoffDelay implements the retry formula:
// min(base·2^(retryCount-1), cap) plus a uniform jitter up to
// jitterFraction of that capped delay.
func (r *Runtime) backoffDelay(retryCount int) time.Duration {
	base := r.cfg.BackoffBase
	ceiling := r.cfg.BackoffCap

	exp := base
	for i := 1; i < retryCount; i++ {
		exp *= 2
		if exp > ceiling {
			exp = ceiling
			break
		}
	}
	if exp > ceiling {
		exp = ceiling
	}

	jitter := time.Duration(r.rng.Float64() * r.cfg.BackoffJitterFraction * float64(exp))
	return exp + jitter
}
