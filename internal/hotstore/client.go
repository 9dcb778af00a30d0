// Package hotstore is the low-latency Redis-backed view the orchestrator and
// workers use for dispatch decisions: per-node status/output hashes, the
// distributed dispatch lock, retry counters, and the idempotency set. The
// cold store holds workflows and execution-level status; per-node statuses
// and outputs live only here and expire with the execution's TTL.
package hotstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/workflowcore/internal/logger"
)

// ErrNotFound is returned when a key or field does not exist.
var ErrNotFound = errors.New("hotstore: not found")

// Client wraps redis.Client with the primitives the domain layer composes
// into dispatch-lock/retry-counter/idempotency semantics.
type Client struct {
	redis *redis.Client
	log   *logger.Logger
}

// New wraps an already-constructed redis.Client.
func New(rdb *redis.Client, log *logger.Logger) *Client {
	return &Client{redis: rdb, log: log}
}

// Ping verifies connectivity, for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.redis.Close()
}

// SetHashField sets a single field on a hash key.
func (c *Client) SetHashField(ctx context.Context, key, field, value string) error {
	if err := c.redis.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("hset %s.%s: %w", key, field, err)
	}
	return nil
}

// GetHashField reads a single field from a hash key.
func (c *Client) GetHashField(ctx context.Context, key, field string) (string, error) {
	val, err := c.redis.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("hget %s.%s: %w", key, field, err)
	}
	return val, nil
}

// GetAllHash reads every field of a hash key.
func (c *Client) GetAllHash(ctx context.Context, key string) (map[string]string, error) {
	val, err := c.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return val, nil
}

// ExpireKey sets (or refreshes) a TTL on a key.
func (c *Client) ExpireKey(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// SetNX sets a key only if absent, the building block of the dispatch lock.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.redis.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// Get reads a plain string key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

// Delete removes one or more keys. Deleting a key that doesn't exist is not
// an error (idempotent unlock).
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del %v: %w", keys, err)
	}
	return nil
}

// Eval runs a Lua script, used for the compare-and-delete unlock that avoids
// releasing a lock acquired by a different holder after the TTL rolled over.
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	res, err := c.redis.Eval(ctx, script, keys, args...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	return res, nil
}

// Incr increments a counter key and returns its new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	val, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return val, nil
}

// SAdd adds a member to a set, returning true iff it was newly added.
func (c *Client) SAdd(ctx context.Context, key, member string) (bool, error) {
	n, err := c.redis.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sadd %s: %w", key, err)
	}
	return n > 0, nil
}

// SIsMember reports whether a member is present in a set.
func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := c.redis.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", key, err)
	}
	return ok, nil
}
