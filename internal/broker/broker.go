package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/workflowcore/internal/logger"
)

// Broker is the domain-level interface the orchestrator, worker, and reaper
// depend on, so each can be tested against an in-memory fake.
type Broker interface {
	EnsureGroups(ctx context.Context) error

	PublishTask(ctx context.Context, task Task) (string, error)
	ReadTasks(ctx context.Context, consumer string, count int64, block time.Duration) ([]Delivery[Task], error)
	AckTask(ctx context.Context, id string) error
	ClaimStaleTasks(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Delivery[Task], error)
	PendingTaskCount(ctx context.Context) (int64, error)

	PublishCompletion(ctx context.Context, completion Completion) (string, error)
	ReadCompletions(ctx context.Context, consumer string, count int64, block time.Duration) ([]Delivery[Completion], error)
	AckCompletion(ctx context.Context, id string) error

	PublishDLQ(ctx context.Context, payload json.RawMessage) (string, error)
}

// RedisBroker implements Broker over go-redis Streams with consumer groups.
type RedisBroker struct {
	redis *redis.Client
	log   *logger.Logger
}

// New builds a RedisBroker.
func New(rdb *redis.Client, log *logger.Logger) *RedisBroker {
	return &RedisBroker{redis: rdb, log: log}
}

// EnsureGroups creates the consumer groups for the tasks and completions
// streams, tolerating the BUSYGROUP error from a prior run.
func (b *RedisBroker) EnsureGroups(ctx context.Context) error {
	if err := b.createGroup(ctx, TasksStream, TasksGroup); err != nil {
		return err
	}
	return b.createGroup(ctx, CompletionsStream, CompletionsGroup)
}

func (b *RedisBroker) createGroup(ctx context.Context, stream, group string) error {
	err := b.redis.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

func (b *RedisBroker) PublishTask(ctx context.Context, task Task) (string, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}
	id, err := b.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: TasksStream,
		Values: map[string]interface{}{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish task: %w", err)
	}
	return id, nil
}

func (b *RedisBroker) ReadTasks(ctx context.Context, consumer string, count int64, block time.Duration) ([]Delivery[Task], error) {
	streams, err := b.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    TasksGroup,
		Consumer: consumer,
		Streams:  []string{TasksStream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return decodeMessages[Task](streams)
}

func (b *RedisBroker) AckTask(ctx context.Context, id string) error {
	if err := b.redis.XAck(ctx, TasksStream, TasksGroup, id).Err(); err != nil {
		return fmt.Errorf("ack task %s: %w", id, err)
	}
	return nil
}

// ClaimStaleTasks runs XAUTOCLAIM, the reaper's resurrect step for messages
// idle longer than minIdle under a consumer that died mid-processing.
func (b *RedisBroker) ClaimStaleTasks(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Delivery[Task], error) {
	messages, _, err := b.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   TasksStream,
		Group:    TasksGroup,
		MinIdle:  minIdle,
		Start:    "0-0",
		Consumer: consumer,
		Count:    count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	return decodeMessages[Task](nil, messages...)
}

// PendingTaskCount reports the number of tasks delivered but not yet acked.
func (b *RedisBroker) PendingTaskCount(ctx context.Context) (int64, error) {
	summary, err := b.redis.XPending(ctx, TasksStream, TasksGroup).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}
	return summary.Count, nil
}

func (b *RedisBroker) PublishCompletion(ctx context.Context, completion Completion) (string, error) {
	payload, err := json.Marshal(completion)
	if err != nil {
		return "", fmt.Errorf("marshal completion: %w", err)
	}
	id, err := b.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: CompletionsStream,
		Values: map[string]interface{}{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish completion: %w", err)
	}
	return id, nil
}

func (b *RedisBroker) ReadCompletions(ctx context.Context, consumer string, count int64, block time.Duration) ([]Delivery[Completion], error) {
	streams, err := b.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    CompletionsGroup,
		Consumer: consumer,
		Streams:  []string{CompletionsStream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read completions: %w", err)
	}
	return decodeMessages[Completion](streams)
}

func (b *RedisBroker) AckCompletion(ctx context.Context, id string) error {
	if err := b.redis.XAck(ctx, CompletionsStream, CompletionsGroup, id).Err(); err != nil {
		return fmt.Errorf("ack completion %s: %w", id, err)
	}
	return nil
}

func (b *RedisBroker) PublishDLQ(ctx context.Context, payload json.RawMessage) (string, error) {
	id, err := b.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		Values: map[string]interface{}{"payload": []byte(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish dlq entry: %w", err)
	}
	return id, nil
}

func decodeMessages[T any](streams []redis.XStream, extra ...redis.XMessage) ([]Delivery[T], error) {
	var out []Delivery[T]
	decode := func(msg redis.XMessage) error {
		raw, ok := msg.Values["payload"]
		if !ok {
			return fmt.Errorf("message %s missing payload field", msg.ID)
		}
		var str string
		switch v := raw.(type) {
		case string:
			str = v
		case []byte:
			str = string(v)
		default:
			return fmt.Errorf("message %s payload has unexpected type %T", msg.ID, raw)
		}
		var decoded T
		if err := json.Unmarshal([]byte(str), &decoded); err != nil {
			return fmt.Errorf("decode message %s: %w", msg.ID, err)
		}
		out = append(out, Delivery[T]{ID: msg.ID, Message: decoded})
		return nil
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := decode(msg); err != nil {
				return nil, err
			}
		}
	}
	for _, msg := range extra {
		if err := decode(msg); err != nil {
			return nil, err
		}
	}
	return out, nil
}
