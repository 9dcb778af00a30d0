// Command reaper recovers tasks whose worker died mid-processing by
// auto-claiming long-idle pending entries from the tasks stream and
// resurrecting them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lyzr/workflowcore/internal/bootstrap"
	"github.com/lyzr/workflowcore/internal/healthserver"
	"github.com/lyzr/workflowcore/internal/reaper"
)

var (
	envFile    string
	healthPort int
)

func main() {
	root := &cobra.Command{
		Use:   "reaper",
		Short: "Resurrect tasks abandoned by a dead worker consumer",
		RunE:  run,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file to load before reading configuration")
	root.PersistentFlags().IntVar(&healthPort, "health-port", 8082, "port to serve GET /healthz on")

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

	// The reaper only ever touches the broker's pending entry list; it has
	// no business with the cold store.
	components, err := bootstrap.Setup(ctx, "reaper", bootstrap.WithoutColdStore())
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer components.Shutdown(ctx)

	healthserver.New("reaper", healthPort, components, components.Logger).Start(ctx)

	r := reaper.New(
		components.Broker, components.Logger,
		components.Config.Reaper.CheckInterval,
		components.Config.Reaper.MinIdle,
		components.Config.Reaper.BatchSize,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			components.Logger.Error("reaper failed", "error", err)
			return err
		}
		return nil
	case sig := <-sigCh:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}
	<-errCh
	return nil
}
