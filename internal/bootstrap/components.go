// Package bootstrap wires up the components every cmd/ binary needs —
// config, logging, cold store, hot store, and the message broker — behind
// one Setup call with LIFO cleanup.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/coldstore"
	"github.com/lyzr/workflowcore/internal/config"
	"github.com/lyzr/workflowcore/internal/hotstore"
	"github.com/lyzr/workflowcore/internal/logger"
)

// Components holds every initialized dependency a binary might need; each
// main() reads only the fields relevant to it.
type Components struct {
	Config *config.Config
	Logger *logger.Logger
	Cold   *coldstore.Pool
	Redis  *redis.Client
	Hot    hotstore.Store
	Broker broker.Broker

	cleanupFuncs []func() error
}

// Shutdown runs every registered cleanup function in reverse order.
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")
	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks every component with a meaningful health signal.
func (c *Components) Health(ctx context.Context) error {
	if c.Cold != nil {
		if err := c.Cold.Health(ctx); err != nil {
			return fmt.Errorf("cold store unhealthy: %w", err)
		}
	}
	if c.Hot != nil {
		if _, err := c.Hot.GetAggregateStatus(ctx, "__health__"); err != nil && err != hotstore.ErrNotFound {
			return fmt.Errorf("hot store unhealthy: %w", err)
		}
	}
	return nil
}

func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
