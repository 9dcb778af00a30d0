package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the execution-level aggregate status.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether the execution status can never change again.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// NodeStatus is the per-node lifecycle status.
type NodeStatus string

const (
	NodePending   NodeStatus = "PENDING"
	NodeRunning   NodeStatus = "RUNNING"
	NodeCompleted NodeStatus = "COMPLETED"
	NodeFailed    NodeStatus = "FAILED"
	NodeCancelled NodeStatus = "CANCELLED"
	NodeSkipped   NodeStatus = "SKIPPED"
)

// IsTerminal reports whether a node status is absorbing.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeCompleted, NodeFailed, NodeCancelled, NodeSkipped:
		return true
	default:
		return false
	}
}

// legalTransitions encodes the restricted transition relation:
// PENDING -> {RUNNING, CANCELLED, SKIPPED}; RUNNING -> {COMPLETED, FAILED,
// CANCELLED}; terminal states are absorbing.
var legalTransitions = map[NodeStatus]map[NodeStatus]struct{}{
	NodePending: {
		NodeRunning:   {},
		NodeCancelled: {},
		NodeSkipped:   {},
	},
	NodeRunning: {
		NodeCompleted: {},
		NodeFailed:    {},
		NodeCancelled: {},
	},
}

// InvalidTransitionError is returned when a NodeState transition isn't in
// the legal successor set of the current state.
type InvalidTransitionError struct {
	From NodeStatus
	To   NodeStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid node transition: %s -> %s", e.From, e.To)
}

// NodeState is the per-node runtime record inside an Execution.
type NodeState struct {
	Status      NodeStatus      `json:"status"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       *string         `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// TransitionTo validates and applies a status transition, succeeding iff
// next is in the legal successor set of the current status. A status is
// never its own successor, matching the legal transition sets above:
// re-entering the current state is rejected rather than treated as a no-op.
func (n *NodeState) TransitionTo(next NodeStatus, at time.Time) error {
	allowed, ok := legalTransitions[n.Status]
	if !ok {
		return &InvalidTransitionError{From: n.Status, To: next}
	}
	if _, ok := allowed[next]; !ok {
		return &InvalidTransitionError{From: n.Status, To: next}
	}

	n.Status = next
	switch next {
	case NodeRunning:
		n.StartedAt = ptrTime(at)
	case NodeCompleted, NodeFailed, NodeCancelled, NodeSkipped:
		n.CompletedAt = ptrTime(at)
	}
	return nil
}

func ptrTime(t time.Time) *time.Time { return &t }

// Execution is one run of a workflow.
type Execution struct {
	ID              uuid.UUID              `json:"id"`
	WorkflowID      uuid.UUID              `json:"workflow_id"`
	Status          ExecutionStatus        `json:"status"`
	Params          json.RawMessage        `json:"params,omitempty"`
	TimeoutSeconds  *float64               `json:"timeout_seconds,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	NodeStates      map[string]*NodeState  `json:"node_states"`
}

// InitializeNodes seeds every node id with a fresh PENDING NodeState.
func (e *Execution) InitializeNodes(nodeIDs []string) {
	e.NodeStates = make(map[string]*NodeState, len(nodeIDs))
	for _, id := range nodeIDs {
		e.NodeStates[id] = &NodeState{Status: NodePending}
	}
}
