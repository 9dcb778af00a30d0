// Package coldstore is the durable system of record: Postgres tables for
// workflow definitions and execution history, queried through pgx/v5.
package coldstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyzr/workflowcore/internal/config"
	"github.com/lyzr/workflowcore/internal/logger"
)

// Pool wraps pgxpool.Pool with the connection lifecycle every process needs.
type Pool struct {
	*pgxpool.Pool
	log *logger.Logger
}

// New opens a connection pool against the cold store and verifies it with a
// ping before returning.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("cold store connected", "host", cfg.Database.Host, "db", cfg.Database.Database)
	return &Pool{Pool: pool, log: log}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.log.Info("closing cold store connection pool")
	p.Pool.Close()
}

// Health pings the pool with a short deadline, for readiness probes.
func (p *Pool) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return p.Pool.Ping(ctx)
}
