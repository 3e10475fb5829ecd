// Package actions defines the contract between the step executor and the
// configured side effects of action steps.
package actions

import (
	"context"
	"log/slog"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

// Context carries the enrolled entity into an action execution. Snapshot
// is the entity's state as fetched at step-execution time; actions that
// mutate the entity go through the entities service, not the snapshot.
type Context struct {
	AutomationID string
	EnrollmentID string
	EntityType   models.EntityType
	EntityID     string
	Snapshot     map[string]any
	Logger       *slog.Logger
}

// Action is one executable side effect. Execute must honor ctx
// cancellation: the executor runs every action under a bounded timeout
// and records a timed-out action as failed without aborting the step.
// Implementations should be idempotent or tolerate re-application, since
// a reclaimed enrollment re-runs its current step.
type Action interface {
	Execute(ctx context.Context, actx Context) (map[string]any, error)
}
