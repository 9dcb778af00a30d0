package worker

import (
	"context"

	"github.com/lyzr/workflowcore/internal/models"
)

// DLQRepository is the narrow slice of the cold store the worker needs to
// record a dead-lettered task.
type DLQRepository interface {
	InsertDLQEntry(ctx context.Context, entry *models.DLQEntry) error
}
