package dagcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowcore/internal/dag"
)

const sampleSpec = `{"nodes":[{"id":"a","handler":"echo"}]}`

func TestCache_LoadsOnceThenHits(t *testing.T) {
	loads := 0
	loader := func(ctx context.Context, workflowID string) (*dag.DAG, error) {
		loads++
		return dag.Build([]byte(sampleSpec))
	}

	cache, err := New(4, time.Minute, loader)
	require.NoError(t, err)

	d1, err := cache.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, d1)

	d2, err := cache.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Same(t, d1, d2)
	require.Equal(t, 1, loads)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	loads := 0
	loader := func(ctx context.Context, workflowID string) (*dag.DAG, error) {
		loads++
		return dag.Build([]byte(sampleSpec))
	}

	cache, err := New(4, time.Minute, loader)
	require.NoError(t, err)

	now := time.Now()
	cache.clock = func() time.Time { return now }

	_, err = cache.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Equal(t, 1, loads)

	cache.clock = func() time.Time { return now.Add(2 * time.Minute) }

	_, err = cache.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Equal(t, 2, loads, "expired entry should trigger a reload")
}

func TestCache_Invalidate(t *testing.T) {
	loads := 0
	loader := func(ctx context.Context, workflowID string) (*dag.DAG, error) {
		loads++
		return dag.Build([]byte(sampleSpec))
	}

	cache, err := New(4, time.Minute, loader)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	cache.Invalidate("wf-1")

	_, err = cache.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Equal(t, 2, loads)
}
