// Package store provides the durable task store backing the orchestrator.
package store

import (
	"context"

	"submission-engine/internal/models"
)

// TaskStore is the narrow persistence contract the orchestrator depends on.
// It is the source of truth across restarts; every status transition is
// written through it before a task's timer advances the task further.
type TaskStore interface {
	Insert(ctx context.Context, task *models.SubmissionTask) error
	Update(ctx context.Context, task *models.SubmissionTask) error
	GetByID(ctx context.Context, id string) (*models.SubmissionTask, error)
	// ListByStatus returns tasks in any of the given statuses, ordered by
	// priority descending then creation time ascending.
	ListByStatus(ctx context.Context, statuses ...models.TaskStatus) ([]*models.SubmissionTask, error)
}
