// Package persistence provides the storage abstraction for automations,
// enrollments and the execution log.
package persistence

import (
	"context"
	"time"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

type Persistence interface {
	// Automation definitions. The engine reads them and bumps counters;
	// only the API mutates anything else.
	Automations(ctx context.Context) ([]*models.Automation, error)
	AutomationByID(ctx context.Context, id string) (*models.Automation, error)
	ActiveAutomationsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Automation, error)
	SaveAutomation(ctx context.Context, automation *models.Automation) error
	DeleteAutomation(ctx context.Context, id string) error
	RecordExecution(ctx context.Context, automationID string, success bool, at time.Time) error

	// Enrollments. CreateEnrollment returns ErrDuplicateEnrollment when
	// an active enrollment already exists for the same (automation,
	// entityType, entityID).
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	EnrollmentByID(ctx context.Context, id string) (*models.Enrollment, error)
	ActiveEnrollment(ctx context.Context, automationID string, entityType models.EntityType, entityID string) (*models.Enrollment, error)
	EnrollmentsByAutomation(ctx context.Context, automationID string) ([]*models.Enrollment, error)
	EnrollmentsByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Enrollment, error)
	UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error

	// Worker claims. ClaimDueEnrollments atomically marks up to limit due
	// active enrollments as claimed by workerID and returns them; rows
	// claimed less than claimTTL ago are skipped. ReleaseClaim clears the
	// marker only if workerID still holds it.
	ClaimDueEnrollments(ctx context.Context, now time.Time, limit int, workerID string, claimTTL time.Duration) ([]*models.Enrollment, error)
	ReleaseClaim(ctx context.Context, enrollmentID, workerID string) error

	// Execution log, append-only.
	AppendExecution(ctx context.Context, entry *models.ExecutionLogEntry) error
	ExecutionsByAutomation(ctx context.Context, automationID string, limit int) ([]*models.ExecutionLogEntry, error)
	ExecutionsByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ExecutionLogEntry, error)
	ExecutionsByEntity(ctx context.Context, entityType models.EntityType, entityID string, limit int) ([]*models.ExecutionLogEntry, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
