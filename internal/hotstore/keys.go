package hotstore

import "fmt"

// Key namespace for the hot store. Every key is scoped by execution id (and
// node id where relevant) so a single Redis instance can serve many
// concurrent executions without collision.

func executionHashKey(executionID string) string {
	return fmt.Sprintf("execution:%s", executionID)
}

func nodeStatusField(nodeID string) string {
	return fmt.Sprintf("status:%s", nodeID)
}

func nodeOutputField(nodeID string) string {
	return fmt.Sprintf("output:%s", nodeID)
}

func metadataField(key string) string {
	return fmt.Sprintf("metadata:%s", key)
}

func aggregateStatusField() string {
	return "aggregate_status"
}

func dispatchLockKey(executionID, nodeID string) string {
	return fmt.Sprintf("lock:dispatch:%s:%s", executionID, nodeID)
}

func taskRetryKey(executionID, nodeID string) string {
	return fmt.Sprintf("task_retry:%s:%s", executionID, nodeID)
}

func processedTasksKey(executionID string) string {
	return fmt.Sprintf("processed_tasks:%s", executionID)
}
