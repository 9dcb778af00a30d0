// Package dagcache caches parsed DAGs by workflow id so the orchestrator
// doesn't re-parse and re-validate a workflow's JSON on every dispatch
// decision. It is a pure speed optimization: a miss always falls back to the
// cold store and re-populates the cache, so cache eviction can never change
// orchestration outcomes.
package dagcache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lyzr/workflowcore/internal/dag"
)

// Loader fetches and builds the DAG for a workflow id on a cache miss.
type Loader func(ctx context.Context, workflowID string) (*dag.DAG, error)

type entry struct {
	dag       *dag.DAG
	expiresAt time.Time
}

// Cache is a bounded, TTL-expiring cache of parsed DAGs. Concurrent misses
// for the same workflow id each load and publish independently: the last
// writer wins, which is safe because every build of the same workflow_id
// JSON produces an identical DAG.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, entry]
	ttl   time.Duration
	load  Loader
	clock func() time.Time
}

// New builds a Cache with the given capacity and TTL.
func New(maxEntries int, ttl time.Duration, load Loader) (*Cache, error) {
	inner, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: inner, ttl: ttl, load: load, clock: time.Now}, nil
}

// Get returns the DAG for workflowID, loading and caching it on a miss or
// expiry.
func (c *Cache) Get(ctx context.Context, workflowID string) (*dag.DAG, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(workflowID); ok && c.clock().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.dag, nil
	}
	c.mu.Unlock()

	d, err := c.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lru.Add(workflowID, entry{dag: d, expiresAt: c.clock().Add(c.ttl)})
	c.mu.Unlock()

	return d, nil
}

// Invalidate removes a workflow id from the cache immediately.
func (c *Cache) Invalidate(workflowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(workflowID)
}

// Len reports the number of entries currently cached, for metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
