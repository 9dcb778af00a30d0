// Package ratelimit throttles how often a given workflow name can be
// submitted, via a fixed-window counter implemented as a Redis Lua script.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Result reports the outcome of one rate limit check.
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter enforces fixed-window submission limits, keyed per workflow name.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
}

// New builds a Limiter backed by rdb.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{redis: rdb, script: redis.NewScript(rateLimitScript)}
}

// CheckSubmissionLimit enforces limit submissions of workflowName per
// windowSeconds, atomically incrementing the window's counter.
func (l *Limiter) CheckSubmissionLimit(ctx context.Context, workflowName string, limit int64, windowSeconds int) (*Result, error) {
	key := fmt.Sprintf("ratelimit:submit:%s", workflowName)
	return l.check(ctx, key, limit, windowSeconds)
}

func (l *Limiter) check(ctx context.Context, key string, limit int64, windowSeconds int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSeconds).Result()
	if err != nil {
		return nil, fmt.Errorf("run rate limit script: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script result shape")
	}

	return &Result{
		Allowed:           values[0].(int64) == 1,
		CurrentCount:      values[1].(int64),
		Limit:             values[2].(int64),
		RetryAfterSeconds: values[3].(int64),
	}, nil
}
