// Package reaper recovers tasks whose consumer died mid-processing: it
// claims entries idle longer than a threshold from the tasks stream's
// pending entry list, republishes each as a fresh delivery, and acks the
// original — the resurrect-and-bury pattern. Correctness relies entirely on
// worker-side idempotency (stable task ids), never on state the
// orchestrator or hot store hold.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/logger"
)

// Reaper periodically auto-claims stale task deliveries and resurrects them.
type Reaper struct {
	broker        broker.Broker
	log           *logger.Logger
	consumerName  string
	checkInterval time.Duration
	minIdle       time.Duration
	batchSize     int64

	sleep func(context.Context, time.Duration) error
}

// New builds a Reaper.
func New(b broker.Broker, log *logger.Logger, checkInterval, minIdle time.Duration, batchSize int64) *Reaper {
	return &Reaper{
		broker:        b,
		log:           log,
		consumerName:  fmt.Sprintf("reaper-%s", uuid.New().String()[:8]),
		checkInterval: checkInterval,
		minIdle:       minIdle,
		batchSize:     batchSize,
		sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run claims and resurrects stale tasks on a fixed interval until ctx is
// cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.log.Info("reaper started", "consumer", r.consumerName, "min_idle", r.minIdle)
	if err := r.broker.EnsureGroups(ctx); err != nil {
		return fmt.Errorf("ensure consumer groups: %w", err)
	}

	for {
		if err := r.Sweep(ctx); err != nil {
			r.log.Error("reaper sweep error", "error", err)
		}

		select {
		case <-ctx.Done():
			r.log.Info("reaper shutdown complete")
			return nil
		default:
		}
		if err := r.sleep(ctx, r.checkInterval); err != nil {
			r.log.Info("reaper shutdown complete")
			return nil
		}
	}
}

// Sweep runs exactly one claim-resurrect-bury pass; Run calls it on each
// tick, and tests call it directly.
func (r *Reaper) Sweep(ctx context.Context) error {
	claimed, err := r.broker.ClaimStaleTasks(ctx, r.consumerName, r.minIdle, r.batchSize)
	if err != nil {
		return fmt.Errorf("claim stale tasks: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}

	r.log.Info("reclaimed zombie tasks", "count", len(claimed))
	for _, delivery := range claimed {
		if _, err := r.broker.PublishTask(ctx, delivery.Message); err != nil {
			return fmt.Errorf("resurrect task %s: %w", delivery.Message.ID, err)
		}
		if err := r.broker.AckTask(ctx, delivery.ID); err != nil {
			return fmt.Errorf("bury original delivery %s: %w", delivery.ID, err)
		}
		r.log.Info("resurrected task", "execution_id", delivery.Message.ExecutionID, "node_id", delivery.Message.NodeID)
	}
	return nil
}
