// Package models holds the core aggregate types: Workflow, Execution,
// NodeState, and DLQEntry.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Workflow is an immutable workflow definition, owned exclusively by the
// cold store once submitted.
type Workflow struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	DAGJSON   json.RawMessage `json:"dag_json"`
	CreatedAt time.Time       `json:"created_at"`
}
