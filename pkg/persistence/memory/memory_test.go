package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
)

func seedAutomation(t *testing.T, p *Persistence, id string) *models.Automation {
	t.Helper()

	automation := &models.Automation{
		ID:       id,
		Name:     "Tag contact",
		Trigger:  models.Trigger{Type: models.TriggerContactCreated},
		IsActive: true,
		Steps: []models.Step{
			{
				StepIndex: 0,
				Name:      "tag",
				Type:      models.StepTypeAction,
				Actions:   []models.ActionItem{{Type: "add_tag", Config: map[string]any{"tag": "x"}}},
			},
		},
	}
	require.NoError(t, p.SaveAutomation(context.Background(), automation))

	return automation
}

func activeEnrollment(automationID, entityID string, dueAt time.Time) *models.Enrollment {
	return &models.Enrollment{
		AutomationID: automationID,
		EntityType:   models.EntityTypeContact,
		EntityID:     entityID,
		Status:       models.EnrollmentStatusActive,
		EnrolledAt:   dueAt,
		NextDueAt:    &dueAt,
	}
}

func TestCreateEnrollmentRejectsDuplicateActive(t *testing.T) {
	t.Parallel()

	p := NewPersistence()
	ctx := context.Background()
	now := time.Now().UTC()

	first := activeEnrollment("auto-1", "c-1", now)
	require.NoError(t, p.CreateEnrollment(ctx, first))
	assert.NotEmpty(t, first.ID)

	err := p.CreateEnrollment(ctx, activeEnrollment("auto-1", "c-1", now))
	assert.ErrorIs(t, err, persistence.ErrDuplicateEnrollment)

	// A different entity, or a different automation, is fine.
	require.NoError(t, p.CreateEnrollment(ctx, activeEnrollment("auto-1", "c-2", now)))
	require.NoError(t, p.CreateEnrollment(ctx, activeEnrollment("auto-2", "c-1", now)))

	// Once the first exits, the entity may re-enroll.
	first.Exit(models.ExitReasonCriteriaMet, now)
	require.NoError(t, p.UpdateEnrollment(ctx, first))
	require.NoError(t, p.CreateEnrollment(ctx, activeEnrollment("auto-1", "c-1", now)))
}

func TestUpdateEnrollmentTerminalRowsAreImmutable(t *testing.T) {
	t.Parallel()

	p := NewPersistence()
	ctx := context.Background()
	now := time.Now().UTC()

	enrollment := activeEnrollment("auto-1", "c-1", now)
	require.NoError(t, p.CreateEnrollment(ctx, enrollment))

	enrollment.Complete(now)
	require.NoError(t, p.UpdateEnrollment(ctx, enrollment))

	enrollment.CurrentStepIndex = 3
	err := p.UpdateEnrollment(ctx, enrollment)
	assert.ErrorIs(t, err, persistence.ErrTerminalEnrollment)
}

func TestClaimDueEnrollments(t *testing.T) {
	t.Parallel()

	p := NewPersistence()
	ctx := context.Background()
	now := time.Now().UTC()

	due := activeEnrollment("auto-1", "c-1", now.Add(-time.Minute))
	future := activeEnrollment("auto-1", "c-2", now.Add(time.Hour))
	require.NoError(t, p.CreateEnrollment(ctx, due))
	require.NoError(t, p.CreateEnrollment(ctx, future))

	claimed, err := p.ClaimDueEnrollments(ctx, now, 10, "worker-a", 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, "worker-a", claimed[0].ClaimedBy)

	// A second worker cannot claim the same row while the claim is fresh.
	claimed, err = p.ClaimDueEnrollments(ctx, now, 10, "worker-b", 2*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// Once the claim outlives the TTL it becomes reclaimable.
	later := now.Add(3 * time.Minute)
	claimed, err = p.ClaimDueEnrollments(ctx, later, 10, "worker-b", 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "worker-b", claimed[0].ClaimedBy)
}

func TestClaimDueEnrollmentsOrderAndLimit(t *testing.T) {
	t.Parallel()

	p := NewPersistence()
	ctx := context.Background()
	now := time.Now().UTC()

	oldest := activeEnrollment("auto-1", "c-1", now.Add(-3*time.Minute))
	middle := activeEnrollment("auto-1", "c-2", now.Add(-2*time.Minute))
	newest := activeEnrollment("auto-1", "c-3", now.Add(-time.Minute))
	require.NoError(t, p.CreateEnrollment(ctx, middle))
	require.NoError(t, p.CreateEnrollment(ctx, oldest))
	require.NoError(t, p.CreateEnrollment(ctx, newest))

	claimed, err := p.ClaimDueEnrollments(ctx, now, 2, "worker-a", time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, oldest.ID, claimed[0].ID)
	assert.Equal(t, middle.ID, claimed[1].ID)
}

func TestReleaseClaim(t *testing.T) {
	t.Parallel()

	p := NewPersistence()
	ctx := context.Background()
	now := time.Now().UTC()

	enrollment := activeEnrollment("auto-1", "c-1", now.Add(-time.Minute))
	require.NoError(t, p.CreateEnrollment(ctx, enrollment))

	_, err := p.ClaimDueEnrollments(ctx, now, 10, "worker-a", time.Minute)
	require.NoError(t, err)

	// Releasing under the wrong worker id is a no-op.
	require.NoError(t, p.ReleaseClaim(ctx, enrollment.ID, "worker-b"))

	stored, err := p.EnrollmentByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, "worker-a", stored.ClaimedBy)

	require.NoError(t, p.ReleaseClaim(ctx, enrollment.ID, "worker-a"))

	stored, err = p.EnrollmentByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ClaimedBy)
	assert.Nil(t, stored.ClaimedAt)
}

func TestExecutionLogReadsNewestFirst(t *testing.T) {
	t.Parallel()

	p := NewPersistence()
	ctx := context.Background()

	for _, detail := range []string{"first", "second", "third"} {
		require.NoError(t, p.AppendExecution(ctx, &models.ExecutionLogEntry{
			AutomationID: "auto-1",
			EnrollmentID: "enr-1",
			EntityType:   models.EntityTypeContact,
			EntityID:     "c-1",
			Outcome:      models.OutcomeSuccess,
			Detail:       detail,
		}))
	}

	logs, err := p.ExecutionsByAutomation(ctx, "auto-1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "third", logs[0].Detail)
	assert.Equal(t, "second", logs[1].Detail)

	byEntity, err := p.ExecutionsByEntity(ctx, models.EntityTypeContact, "c-1", 0)
	require.NoError(t, err)
	assert.Len(t, byEntity, 3)
}

func TestSoftDeleteHidesAutomation(t *testing.T) {
	t.Parallel()

	p := NewPersistence()
	ctx := context.Background()
	automation := seedAutomation(t, p, "auto-1")

	listed, err := p.ActiveAutomationsByTrigger(ctx, models.TriggerContactCreated)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, p.DeleteAutomation(ctx, automation.ID))

	_, err = p.AutomationByID(ctx, automation.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	listed, err = p.ActiveAutomationsByTrigger(ctx, models.TriggerContactCreated)
	require.NoError(t, err)
	assert.Empty(t, listed)

	err = p.DeleteAutomation(ctx, automation.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRecordExecutionCounters(t *testing.T) {
	t.Parallel()

	p := NewPersistence()
	ctx := context.Background()
	automation := seedAutomation(t, p, "auto-1")
	now := time.Now().UTC()

	require.NoError(t, p.RecordExecution(ctx, automation.ID, true, now))
	require.NoError(t, p.RecordExecution(ctx, automation.ID, false, now.Add(time.Minute)))

	saved, err := p.AutomationByID(ctx, automation.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.TotalExecutions)
	assert.Equal(t, int64(1), saved.SuccessfulExecutions)
	require.NotNil(t, saved.LastExecutedAt)
	assert.Equal(t, now.Add(time.Minute), *saved.LastExecutedAt)
}
