package hotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lyzr/workflowcore/internal/template"
)

// unlockScript deletes the lock only if the caller still holds it,
// preventing a worker whose lock already expired from deleting a lock a
// different worker has since acquired.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Store is the domain-level view over the hot store that the orchestrator,
// worker, and submit/trigger use cases compose their logic on top of.
type Store interface {
	SetNodeStatus(ctx context.Context, executionID, nodeID, status string) error
	GetNodeStatus(ctx context.Context, executionID, nodeID string) (string, error)
	SetNodeOutput(ctx context.Context, executionID, nodeID string, output json.RawMessage) error
	GetNodeOutput(ctx context.Context, executionID, nodeID string) (json.RawMessage, error)
	SetAggregateStatus(ctx context.Context, executionID, status string) error
	GetAggregateStatus(ctx context.Context, executionID string) (string, error)
	SetMetadata(ctx context.Context, executionID, key, value string) error
	GetMetadata(ctx context.Context, executionID, key string) (string, error)
	ExpireExecution(ctx context.Context, executionID string, ttl time.Duration) error

	AcquireDispatchLock(ctx context.Context, executionID, nodeID, holder string, ttl time.Duration) (bool, error)
	ReleaseDispatchLock(ctx context.Context, executionID, nodeID, holder string) error

	IncrementRetryCount(ctx context.Context, executionID, nodeID string) (int64, error)
	GetRetryCount(ctx context.Context, executionID, nodeID string) (int64, error)

	MarkProcessed(ctx context.Context, executionID, taskID string) (bool, error)
	IsProcessed(ctx context.Context, executionID, taskID string) (bool, error)

	GetAllNodeStatuses(ctx context.Context, executionID string) (map[string]string, error)
	GetAllOutputs(ctx context.Context, executionID string) (template.Outputs, error)
}

// RedisStore implements Store over Client.
type RedisStore struct {
	client *Client
	ttl    time.Duration
}

// NewRedisStore builds a RedisStore. ttl bounds the lifetime of the
// retry-counter and processed-tasks keys, mirroring the 24h expiry the
// original state store and worker apply to every hot-store key they write.
func NewRedisStore(client *Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) SetNodeStatus(ctx context.Context, executionID, nodeID, status string) error {
	return s.client.SetHashField(ctx, executionHashKey(executionID), nodeStatusField(nodeID), status)
}

func (s *RedisStore) GetNodeStatus(ctx context.Context, executionID, nodeID string) (string, error) {
	return s.client.GetHashField(ctx, executionHashKey(executionID), nodeStatusField(nodeID))
}

func (s *RedisStore) SetNodeOutput(ctx context.Context, executionID, nodeID string, output json.RawMessage) error {
	return s.client.SetHashField(ctx, executionHashKey(executionID), nodeOutputField(nodeID), string(output))
}

func (s *RedisStore) GetNodeOutput(ctx context.Context, executionID, nodeID string) (json.RawMessage, error) {
	val, err := s.client.GetHashField(ctx, executionHashKey(executionID), nodeOutputField(nodeID))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(val), nil
}

func (s *RedisStore) SetAggregateStatus(ctx context.Context, executionID, status string) error {
	return s.client.SetHashField(ctx, executionHashKey(executionID), aggregateStatusField(), status)
}

func (s *RedisStore) GetAggregateStatus(ctx context.Context, executionID string) (string, error) {
	return s.client.GetHashField(ctx, executionHashKey(executionID), aggregateStatusField())
}

func (s *RedisStore) SetMetadata(ctx context.Context, executionID, key, value string) error {
	return s.client.SetHashField(ctx, executionHashKey(executionID), metadataField(key), value)
}

func (s *RedisStore) GetMetadata(ctx context.Context, executionID, key string) (string, error) {
	return s.client.GetHashField(ctx, executionHashKey(executionID), metadataField(key))
}

func (s *RedisStore) ExpireExecution(ctx context.Context, executionID string, ttl time.Duration) error {
	return s.client.ExpireKey(ctx, executionHashKey(executionID), ttl)
}

// AcquireDispatchLock is the sole mutual-exclusion primitive guarding
// fan-in: only the dispatcher that wins the SET NX EX race may evaluate and
// dispatch a node's readiness.
func (s *RedisStore) AcquireDispatchLock(ctx context.Context, executionID, nodeID, holder string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, dispatchLockKey(executionID, nodeID), holder, ttl)
}

// ReleaseDispatchLock deletes the lock iff it is still held by holder.
func (s *RedisStore) ReleaseDispatchLock(ctx context.Context, executionID, nodeID, holder string) error {
	_, err := s.client.Eval(ctx, unlockScript, []string{dispatchLockKey(executionID, nodeID)}, holder)
	if err != nil {
		return fmt.Errorf("release dispatch lock %s/%s: %w", executionID, nodeID, err)
	}
	return nil
}

func (s *RedisStore) IncrementRetryCount(ctx context.Context, executionID, nodeID string) (int64, error) {
	key := taskRetryKey(executionID, nodeID)
	n, err := s.client.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := s.client.ExpireKey(ctx, key, s.ttl); err != nil {
		return 0, fmt.Errorf("expire retry count for %s/%s: %w", executionID, nodeID, err)
	}
	return n, nil
}

func (s *RedisStore) GetRetryCount(ctx context.Context, executionID, nodeID string) (int64, error) {
	val, err := s.client.Get(ctx, taskRetryKey(executionID, nodeID))
	if err == ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
		return 0, fmt.Errorf("parse retry count %q: %w", val, err)
	}
	return n, nil
}

// MarkProcessed records taskID as handled, returning true iff this call was
// the first to record it — the idempotency check that makes at-least-once
// delivery safe to re-apply.
func (s *RedisStore) MarkProcessed(ctx context.Context, executionID, taskID string) (bool, error) {
	key := processedTasksKey(executionID)
	first, err := s.client.SAdd(ctx, key, taskID)
	if err != nil {
		return false, err
	}
	if err := s.client.ExpireKey(ctx, key, s.ttl); err != nil {
		return false, fmt.Errorf("expire processed tasks for %s: %w", executionID, err)
	}
	return first, nil
}

func (s *RedisStore) IsProcessed(ctx context.Context, executionID, taskID string) (bool, error) {
	return s.client.SIsMember(ctx, processedTasksKey(executionID), taskID)
}

const statusFieldPrefix = "status:"
const outputFieldPrefix = "output:"

// GetAllNodeStatuses returns every node's status in one round trip, the
// dispatcher's primary read for finding nodes whose dependencies are met.
func (s *RedisStore) GetAllNodeStatuses(ctx context.Context, executionID string) (map[string]string, error) {
	fields, err := s.client.GetAllHash(ctx, executionHashKey(executionID))
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]string)
	for field, value := range fields {
		if nodeID, ok := strings.CutPrefix(field, statusFieldPrefix); ok {
			statuses[nodeID] = value
		}
	}
	return statuses, nil
}

// GetAllOutputs returns every node's output, decoded into the shape
// template.Resolve expects.
func (s *RedisStore) GetAllOutputs(ctx context.Context, executionID string) (template.Outputs, error) {
	fields, err := s.client.GetAllHash(ctx, executionHashKey(executionID))
	if err != nil {
		return nil, err
	}
	outputs := make(template.Outputs)
	for field, value := range fields {
		nodeID, ok := strings.CutPrefix(field, outputFieldPrefix)
		if !ok {
			continue
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			// An output that isn't a JSON object (e.g. a bare scalar) is
			// exposed under a single "value" key so simple handlers can
			// still be referenced as {{ node_id.value }}.
			var scalar interface{}
			if jsonErr := json.Unmarshal([]byte(value), &scalar); jsonErr == nil {
				outputs[nodeID] = map[string]interface{}{"value": scalar}
				continue
			}
			return nil, fmt.Errorf("decode output for node %s: %w", nodeID, err)
		}
		outputs[nodeID] = decoded
	}
	return outputs, nil
}
