package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	brk "github.com/lyzr/workflowcore/internal/broker"
	"github.com/lyzr/workflowcore/internal/coldstore"
	"github.com/lyzr/workflowcore/internal/config"
	"github.com/lyzr/workflowcore/internal/hotstore"
	"github.com/lyzr/workflowcore/internal/logger"
)

// Setup loads configuration, builds a logger, and connects to the cold
// store, Redis, and broker, registering each for cleanup on Shutdown.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	log.Info("initializing service", "service", serviceName)

	components := &Components{Config: cfg, Logger: log}

	if !o.skipCold {
		pool, err := coldstore.New(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("connect cold store: %w", err)
		}
		components.Cold = pool
		components.addCleanup(func() error {
			pool.Close()
			return nil
		})
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		components.Shutdown(ctx)
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	components.Redis = rdb
	components.addCleanup(rdb.Close)

	components.Hot = hotstore.NewRedisStore(hotstore.New(rdb, log), cfg.Orchestrator.ExecutionMetadataTTL)

	if !o.skipBroker {
		components.Broker = brk.New(rdb, log)
	}

	log.Info("service initialization complete",
		"service", serviceName,
		"cold_store", components.Cold != nil,
		"broker", components.Broker != nil,
	)
	return components, nil
}
