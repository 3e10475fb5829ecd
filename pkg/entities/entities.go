// Package entities abstracts the CRM's contact/deal storage behind the
// snapshot and mutation operations the engine needs. The engine treats
// this as an opaque collaborator; the bundled implementations exist so
// the service is runnable on its own.
package entities

import (
	"context"
	"errors"
	"time"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

var ErrEntityNotFound = errors.New("entity not found")

// Task is a follow-up item created by the create_task action.
type Task struct {
	ID         string            `json:"id"`
	EntityType models.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Title      string            `json:"title"`
	DueAt      *time.Time        `json:"due_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Service exposes entity snapshots to condition evaluation and entity
// mutations to action execution. Snapshot returns ErrEntityNotFound for
// missing or deleted entities; Exists never errors on absence.
type Service interface {
	Snapshot(ctx context.Context, entityType models.EntityType, entityID string) (map[string]any, error)
	Exists(ctx context.Context, entityType models.EntityType, entityID string) (bool, error)
	UpdateField(ctx context.Context, entityType models.EntityType, entityID, field string, value any) error
	AddTag(ctx context.Context, entityType models.EntityType, entityID, tag string) error
	RemoveTag(ctx context.Context, entityType models.EntityType, entityID, tag string) error
	CreateTask(ctx context.Context, task *Task) error
}
