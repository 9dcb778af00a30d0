package broker

import (
	"encoding/json"
	"time"
)

// Task is a dispatch instruction for a single node execution, grounded on
// original_source's worker task payload (execution_id/node_id/handler/config
// plus the retry bookkeeping fields it threads through requeue).
type Task struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	Handler     string          `json:"handler"`
	Config      json.RawMessage `json:"config,omitempty"`
	RetryCount  int             `json:"retry_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Completion reports the outcome of a node execution back to the
// orchestrator.
type Completion struct {
	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	Status      string          `json:"status"`
	Output      json.RawMessage `json:"output,omitempty"`
	ErrorCode   string          `json:"error_code,omitempty"`
	ErrorMsg    string          `json:"error_message,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Delivery wraps a decoded message with the stream message id ACK needs.
type Delivery[T any] struct {
	ID      string
	Message T
}
