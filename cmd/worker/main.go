// Command worker consumes dispatched tasks from the broker and executes them
// against the registered node handlers.
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
	"github.com/lyzr/workflowcore/internal/handler"
	"github.com/lyzr/workflowcore/internal/healthserver"
	"github.com/lyzr/workflowcore/internal/telemetry"
	"github.com/lyzr/workflowcore/internal/worker"
)

var (
	envFile     string
	httpTimeout time.Duration
	pprofPort   int
	healthPort  int
)

func main() {
	root := &cobra.Command{
		Use:   "worker",
		Short: "Execute dispatched tasks against registered node handlers",
		RunE:  run,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file to load before reading configuration")
	root.PersistentFlags().DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "timeout for the http_get handler's outbound requests")
	root.PersistentFlags().IntVar(&pprofPort, "pprof-port", 0, "if nonzero, serve pprof debug endpoints on localhost:<port>")
	root.PersistentFlags().IntVar(&healthPort, "health-port", 8081, "port to serve GET /healthz on")

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

	components, err := bootstrap.Setup(ctx, "worker")
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer components.Shutdown(ctx)

	if pprofPort != 0 {
		telemetry.New(pprofPort, components.Logger).Start()
	}
	healthserver.New("worker", healthPort, components, components.Logger).Start(ctx)

	handlers := handler.NewRegistry()
	handlers.Register(handler.NewEchoHandler())
	handlers.Register(handler.NewSleepHandler())
	handlers.Register(handler.NewHTTPHandler(httpTimeout))
	handlers.Register(handler.NewExternalServiceHandler())

	executions := coldstore.NewExecutionRepository(components.Cold)

	runtime := worker.New(
		components.Broker, components.Hot, handlers, executions,
		components.Config.DLQ.Enabled, components.Logger, components.Config.Worker,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runtime.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			components.Logger.Error("worker runtime failed", "error", err)
			return err
		}
		return nil
	case sig := <-sigCh:
		components.Logger.Info("received shutdown signal, draining", "signal", sig, "drain_timeout", components.Config.Worker.DrainTimeout)
		cancel()
	}

	select {
	case <-errCh:
	case <-time.After(components.Config.Worker.DrainTimeout):
		components.Logger.Info("drain timeout elapsed, exiting")
	}
	return nil
}
