// Package broker wraps Redis Streams with the task/completion/DLQ topology
// this module dispatches work over: a `workflow:tasks` stream workers
// consume from a shared consumer group, a `workflow:completions` stream the
// orchestrator consumes to drive dispatch, and a `workflow:dlq` stream for
// exhausted retries.
package broker

const (
	// TasksStream carries node-execution tasks from orchestrator to workers.
	TasksStream = "workflow:tasks"
	// CompletionsStream carries node outcomes from workers to the orchestrator.
	CompletionsStream = "workflow:completions"
	// DLQStream carries entries that exhausted their retry budget.
	DLQStream = "workflow:dlq"

	// TasksGroup is the consumer group worker processes share.
	TasksGroup = "workers"
	// CompletionsGroup is the consumer group the orchestrator process(es) share.
	CompletionsGroup = "orchestrator"
)
