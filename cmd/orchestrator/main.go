// Command orchestrator runs the dispatch loop that turns node completions
// into newly-dispatched tasks: it consumes the completions stream and
// sweeps running executions for elapsed timeouts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lyzr/workflowcore/internal/bootstrap"
	"github.com/lyzr/workflowcore/internal/coldstore"
	"github.com/lyzr/workflowcore/internal/dagcache"
	"github.com/lyzr/workflowcore/internal/healthserver"
	"github.com/lyzr/workflowcore/internal/orchestrator"
)

var (
	envFile    string
	healthPort int
)

func main() {
	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Dispatch node completions into newly-ready tasks",
		RunE:  run,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file to load before reading configuration")
	root.PersistentFlags().IntVar(&healthPort, "health-port", 8080, "port to serve GET /healthz on")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "orchestrator")
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer components.Shutdown(ctx)

	workflows := coldstore.NewWorkflowRepository(components.Cold)
	executions := coldstore.NewExecutionRepository(components.Cold)

	cache, err := dagcache.New(
		components.Config.Orchestrator.DAGCacheMax,
		components.Config.Orchestrator.DAGCacheTTL,
		orchestrator.NewDAGLoader(workflows),
	)
	if err != nil {
		return fmt.Errorf("build dag cache: %w", err)
	}

	coordinator := orchestrator.New(
		workflows, executions, components.Hot, components.Broker, cache,
		components.Logger, components.Config.Orchestrator.LockTTL, components.Config.Orchestrator.ExecutionMetadataTTL,
	)

	if err := components.Broker.EnsureGroups(ctx); err != nil {
		return fmt.Errorf("ensure consumer groups: %w", err)
	}

	healthserver.New("orchestrator", healthPort, components, components.Logger).Start(ctx)

	errCh := make(chan error, 1)
	go runCompletionLoop(ctx, components, coordinator)
	go runTimeoutSweeper(ctx, coordinator, components.Config.Orchestrator.TimeoutCheckInterval, errCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		components.Logger.Error("orchestrator component failed", "error", err)
		return err
	case sig := <-sigCh:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}
	return nil
}

func runCompletionLoop(ctx context.Context, components *bootstrap.Components, coordinator *orchestrator.Coordinator) {
	log := components.Logger
	consumer := "orchestrator-completions"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deliveries, err := components.Broker.ReadCompletions(ctx, consumer, components.Config.Orchestrator.BatchSize, components.Config.Orchestrator.BlockMS)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("read completions failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, d := range deliveries {
			if err := coordinator.HandleCompletion(ctx, d.Message); err != nil {
				log.Error("handle completion failed", "execution_id", d.Message.ExecutionID, "node_id", d.Message.NodeID, "error", err)
				continue // not acked: the completion stays in the group's pending list
			}
			if err := components.Broker.AckCompletion(ctx, d.ID); err != nil {
				log.Error("ack completion failed", "error", err)
			}
		}
	}
}

func runTimeoutSweeper(ctx context.Context, coordinator *orchestrator.Coordinator, interval time.Duration, errCh chan<- error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := coordinator.CheckAllTimeouts(ctx); err != nil {
				errCh <- fmt.Errorf("timeout sweep: %w", err)
				return
			}
		}
	}
}
