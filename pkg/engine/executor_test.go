package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	addtag "github.com/magnusmagz/crm-k-sub002/pkg/actions/add_tag"
	logaction "github.com/magnusmagz/crm-k-sub002/pkg/actions/log"
	updatefield "github.com/magnusmagz/crm-k-sub002/pkg/actions/update_field"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence/memory"
	"github.com/magnusmagz/crm-k-sub002/pkg/registry"
)

// fakeClock lets tests advance the executor's time between Process calls.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

type executorFixture struct {
	executor    *Executor
	persistence *memory.Persistence
	entities    *entities.MemoryService
	registry    *registry.Registry
	clock       *fakeClock
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	logger := slog.Default()
	persist := memory.NewPersistence()
	entityService := entities.NewMemoryService()

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(addtag.NewAddTagActionFactory(entityService))
	reg.RegisterAction(updatefield.NewUpdateFieldActionFactory(entityService))
	reg.RegisterAction(logaction.NewLogActionFactory())

	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	executor := NewExecutor(logger, persist, entityService, reg, nil)
	executor.now = clock.Now

	return &executorFixture{
		executor:    executor,
		persistence: persist,
		entities:    entityService,
		registry:    reg,
		clock:       clock,
	}
}

func (f *executorFixture) saveAutomation(t *testing.T, automation *models.Automation) *models.Automation {
	t.Helper()
	require.NoError(t, f.persistence.SaveAutomation(context.Background(), automation))

	return automation
}

func (f *executorFixture) enroll(t *testing.T, automationID string, entityType models.EntityType, entityID string) *models.Enrollment {
	t.Helper()

	now := f.clock.Now()
	enrollment := &models.Enrollment{
		AutomationID:     automationID,
		EntityType:       entityType,
		EntityID:         entityID,
		CurrentStepIndex: 0,
		Status:           models.EnrollmentStatusActive,
		EnrolledAt:       now,
		NextDueAt:        &now,
	}
	require.NoError(t, f.persistence.CreateEnrollment(context.Background(), enrollment))

	return enrollment
}

func (f *executorFixture) reload(t *testing.T, enrollmentID string) *models.Enrollment {
	t.Helper()

	enrollment, err := f.persistence.EnrollmentByID(context.Background(), enrollmentID)
	require.NoError(t, err)

	return enrollment
}

func tagThenWaitAutomation() *models.Automation {
	return &models.Automation{
		ID:          "auto-1",
		Name:        "Tag then wait",
		Trigger:     trigger(models.TriggerContactCreated),
		IsActive:    true,
		IsMultiStep: true,
		Steps: []models.Step{
			{
				StepIndex:     0,
				Name:          "tag",
				Type:          models.StepTypeAction,
				Actions:       []models.ActionItem{{Type: "add_tag", Config: map[string]any{"tag": "engaged"}}},
				NextStepIndex: intPtr(1),
			},
			{
				StepIndex: 1,
				Name:      "wait",
				Type:      models.StepTypeDelay,
				Delay:     &models.DelayConfig{Value: 2, Unit: models.DelayUnitHours},
			},
		},
	}
}

func trigger(t models.TriggerType) models.Trigger {
	return models.Trigger{Type: t}
}

func intPtr(i int) *int { return &i }

func TestProcessActionStepAdvances(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{"email": "a@b.c"})
	automation := f.saveAutomation(t, tagThenWaitAutomation())
	enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")

	require.NoError(t, f.executor.Process(context.Background(), enrollment))

	updated := f.reload(t, enrollment.ID)
	assert.Equal(t, 1, updated.CurrentStepIndex)
	assert.Equal(t, models.EnrollmentStatusActive, updated.Status)
	require.NotNil(t, updated.NextDueAt)
	assert.Equal(t, f.clock.Now(), *updated.NextDueAt)

	snapshot, err := f.entities.Snapshot(context.Background(), models.EntityTypeContact, "c-1")
	require.NoError(t, err)
	assert.Contains(t, snapshot["tags"], "engaged")
}

func TestProcessDelayStepTwoPhase(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{})
	automation := f.saveAutomation(t, tagThenWaitAutomation())
	enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")
	enrollment.CurrentStepIndex = 1
	require.NoError(t, f.persistence.UpdateEnrollment(context.Background(), enrollment))

	armTime := f.clock.Now()

	// First visit arms the delay without advancing.
	require.NoError(t, f.executor.Process(context.Background(), enrollment))

	armed := f.reload(t, enrollment.ID)
	assert.Equal(t, 1, armed.CurrentStepIndex)
	require.NotNil(t, armed.DelayArmedAt)
	assert.Equal(t, armTime, *armed.DelayArmedAt)
	require.NotNil(t, armed.NextDueAt)
	assert.Equal(t, armTime.Add(2*time.Hour), *armed.NextDueAt)

	logs, err := f.persistence.ExecutionsByEnrollment(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeScheduled, logs[0].Outcome)

	// Second visit, after the due time, completes the automation since
	// the delay is the last step.
	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.executor.Process(context.Background(), armed))

	done := f.reload(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusCompleted, done.Status)
	assert.Nil(t, done.NextDueAt)

	saved, err := f.persistence.AutomationByID(context.Background(), automation.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.TotalExecutions)
	assert.Equal(t, int64(1), saved.SuccessfulExecutions)
}

func TestProcessConditionStepRouting(t *testing.T) {
	t.Parallel()

	conditionAutomation := func() *models.Automation {
		return &models.Automation{
			ID:          "auto-cond",
			Name:        "Qualified check",
			Trigger:     trigger(models.TriggerDealCreated),
			IsActive:    true,
			IsMultiStep: true,
			Steps: []models.Step{
				{
					StepIndex: 0,
					Name:      "qualified?",
					Type:      models.StepTypeCondition,
					Conditions: []models.Condition{
						{Field: "value", Operator: models.OperatorGreaterThan, Value: 1000},
					},
					ConditionTargets: &models.ConditionTargets{True: intPtr(1), False: nil},
				},
				{
					StepIndex: 1,
					Name:      "mark hot",
					Type:      models.StepTypeAction,
					Actions:   []models.ActionItem{{Type: "update_field", Config: map[string]any{"field": "priority", "value": "hot"}}},
				},
			},
		}
	}

	t.Run("true edge", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)
		f.entities.Put(models.EntityTypeDeal, "d-1", map[string]any{"value": 5000})
		automation := f.saveAutomation(t, conditionAutomation())
		enrollment := f.enroll(t, automation.ID, models.EntityTypeDeal, "d-1")

		require.NoError(t, f.executor.Process(context.Background(), enrollment))
		assert.Equal(t, 1, f.reload(t, enrollment.ID).CurrentStepIndex)
	})

	t.Run("false edge completes", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)
		f.entities.Put(models.EntityTypeDeal, "d-1", map[string]any{"value": 100})
		automation := f.saveAutomation(t, conditionAutomation())
		enrollment := f.enroll(t, automation.ID, models.EntityTypeDeal, "d-1")

		require.NoError(t, f.executor.Process(context.Background(), enrollment))
		assert.Equal(t, models.EnrollmentStatusCompleted, f.reload(t, enrollment.ID).Status)
	})

	t.Run("evaluation error fails closed", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)
		f.entities.Put(models.EntityTypeDeal, "d-1", map[string]any{"value": 5000})
		automation := conditionAutomation()
		automation.Steps[0].Conditions[0].Operator = "matches"
		f.saveAutomation(t, automation)
		enrollment := f.enroll(t, automation.ID, models.EntityTypeDeal, "d-1")

		require.NoError(t, f.executor.Process(context.Background(), enrollment))

		// Unknown operator takes the false edge, which completes.
		assert.Equal(t, models.EnrollmentStatusCompleted, f.reload(t, enrollment.ID).Status)

		logs, err := f.persistence.ExecutionsByEnrollment(context.Background(), enrollment.ID)
		require.NoError(t, err)
		require.NotEmpty(t, logs)
		assert.Contains(t, logs[0].Detail, "evaluation error")
	})
}

func TestProcessBranchStep(t *testing.T) {
	t.Parallel()

	branchAutomation := func() *models.Automation {
		return &models.Automation{
			ID:          "auto-branch",
			Name:        "Route by value",
			Trigger:     trigger(models.TriggerDealCreated),
			IsActive:    true,
			IsMultiStep: true,
			Steps: []models.Step{
				{
					StepIndex: 0,
					Name:      "route",
					Type:      models.StepTypeBranch,
					BranchConfig: []models.BranchCase{
						{Name: "big", Conditions: []models.Condition{{Field: "value", Operator: models.OperatorGreaterThan, Value: 10000}}},
						{Name: "medium", Conditions: []models.Condition{{Field: "value", Operator: models.OperatorGreaterThan, Value: 1000}}},
					},
					BranchTargets: map[string]*int{"big": intPtr(1), "medium": intPtr(2)},
					DefaultTarget: nil,
				},
				{StepIndex: 1, Name: "big path", Type: models.StepTypeAction, Actions: []models.ActionItem{{Type: "log", Config: map[string]any{"message": "big"}}}},
				{StepIndex: 2, Name: "medium path", Type: models.StepTypeAction, Actions: []models.ActionItem{{Type: "log", Config: map[string]any{"message": "medium"}}}},
			},
		}
	}

	tests := []struct {
		name      string
		dealValue any
		wantStep  int
		completed bool
	}{
		{"first match wins", 50000, 1, false},
		{"second case", 5000, 2, false},
		{"default target with no match", 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newExecutorFixture(t)
			f.entities.Put(models.EntityTypeDeal, "d-1", map[string]any{"value": tt.dealValue})
			automation := f.saveAutomation(t, branchAutomation())
			enrollment := f.enroll(t, automation.ID, models.EntityTypeDeal, "d-1")

			require.NoError(t, f.executor.Process(context.Background(), enrollment))

			updated := f.reload(t, enrollment.ID)
			if tt.completed {
				assert.Equal(t, models.EnrollmentStatusCompleted, updated.Status)
			} else {
				assert.Equal(t, models.EnrollmentStatusActive, updated.Status)
				assert.Equal(t, tt.wantStep, updated.CurrentStepIndex)
			}
		})
	}
}

func TestExitPrecedence(t *testing.T) {
	t.Parallel()

	t.Run("criteria met beats max duration", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)
		f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{"status": "unsubscribed"})

		automation := tagThenWaitAutomation()
		automation.ExitCriteria = []models.Condition{{Field: "status", Operator: models.OperatorEquals, Value: "unsubscribed"}}
		automation.MaxDurationDays = intPtr(1)
		f.saveAutomation(t, automation)

		enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")
		f.clock.Advance(48 * time.Hour) // past max duration too

		require.NoError(t, f.executor.Process(context.Background(), enrollment))

		updated := f.reload(t, enrollment.ID)
		assert.Equal(t, models.EnrollmentStatusExited, updated.Status)
		assert.Equal(t, models.ExitReasonCriteriaMet, updated.ExitReason)
	})

	t.Run("max duration exceeded", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)
		f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{})

		automation := tagThenWaitAutomation()
		automation.MaxDurationDays = intPtr(1)
		f.saveAutomation(t, automation)

		enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")
		f.clock.Advance(25 * time.Hour)

		require.NoError(t, f.executor.Process(context.Background(), enrollment))

		updated := f.reload(t, enrollment.ID)
		assert.Equal(t, models.EnrollmentStatusExited, updated.Status)
		assert.Equal(t, models.ExitReasonMaxDurationExceeded, updated.ExitReason)
	})

	t.Run("exit records a failed execution", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)
		f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{})

		automation := tagThenWaitAutomation()
		automation.MaxDurationDays = intPtr(1)
		f.saveAutomation(t, automation)

		enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")
		f.clock.Advance(25 * time.Hour)
		require.NoError(t, f.executor.Process(context.Background(), enrollment))

		saved, err := f.persistence.AutomationByID(context.Background(), automation.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), saved.TotalExecutions)
		assert.Equal(t, int64(0), saved.SuccessfulExecutions)
	})
}

func TestSafetyExits(t *testing.T) {
	t.Parallel()

	t.Run("inactive automation exits when safety enabled", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)
		f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{})

		automation := tagThenWaitAutomation()
		automation.IsActive = false
		automation.SafetyExitEnabled = true
		f.saveAutomation(t, automation)

		enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")
		require.NoError(t, f.executor.Process(context.Background(), enrollment))

		updated := f.reload(t, enrollment.ID)
		assert.Equal(t, models.EnrollmentStatusExited, updated.Status)
		assert.Equal(t, models.ExitReasonAutomationInactive, updated.ExitReason)
	})

	t.Run("inactive automation keeps running without safety", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)
		f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{})

		automation := tagThenWaitAutomation()
		automation.IsActive = false
		f.saveAutomation(t, automation)

		enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")
		require.NoError(t, f.executor.Process(context.Background(), enrollment))

		assert.Equal(t, models.EnrollmentStatusActive, f.reload(t, enrollment.ID).Status)
	})

	t.Run("missing entity exits when safety enabled", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)

		automation := tagThenWaitAutomation()
		automation.SafetyExitEnabled = true
		f.saveAutomation(t, automation)

		enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "gone")
		require.NoError(t, f.executor.Process(context.Background(), enrollment))

		updated := f.reload(t, enrollment.ID)
		assert.Equal(t, models.EnrollmentStatusExited, updated.Status)
		assert.Equal(t, models.ExitReasonEntityMissing, updated.ExitReason)
	})

	t.Run("missing entity reschedules without safety", func(t *testing.T) {
		t.Parallel()

		f := newExecutorFixture(t)
		automation := f.saveAutomation(t, tagThenWaitAutomation())
		enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "gone")

		require.NoError(t, f.executor.Process(context.Background(), enrollment))

		updated := f.reload(t, enrollment.ID)
		assert.Equal(t, models.EnrollmentStatusActive, updated.Status)
		require.NotNil(t, updated.NextDueAt)
		assert.Equal(t, f.clock.Now().Add(5*time.Minute), *updated.NextDueAt)

		logs, err := f.persistence.ExecutionsByEnrollment(context.Background(), enrollment.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, models.OutcomeFailure, logs[0].Outcome)
		assert.Equal(t, "entity not found", logs[0].Detail)
	})
}

func TestProcessDeletedAutomationExitsEnrollment(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{})
	automation := f.saveAutomation(t, tagThenWaitAutomation())
	enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")

	require.NoError(t, f.persistence.DeleteAutomation(context.Background(), automation.ID))
	require.NoError(t, f.executor.Process(context.Background(), enrollment))

	updated := f.reload(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusExited, updated.Status)
	assert.Equal(t, models.ExitReasonAutomationInactive, updated.ExitReason)
}

func TestProcessInvalidStepIndexExits(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{})
	automation := f.saveAutomation(t, tagThenWaitAutomation())
	enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")
	enrollment.CurrentStepIndex = 7
	require.NoError(t, f.persistence.UpdateEnrollment(context.Background(), enrollment))

	require.NoError(t, f.executor.Process(context.Background(), enrollment))

	updated := f.reload(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusExited, updated.Status)
	assert.Equal(t, models.ExitReasonInvalidStep, updated.ExitReason)
}

func TestActionFailureDoesNotBlockProgression(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{})

	automation := tagThenWaitAutomation()
	automation.Steps[0].Actions = []models.ActionItem{
		{Type: "no_such_action", Config: map[string]any{}},
		{Type: "add_tag", Config: map[string]any{"tag": "still-ran"}},
	}
	f.saveAutomation(t, automation)

	enrollment := f.enroll(t, automation.ID, models.EntityTypeContact, "c-1")
	require.NoError(t, f.executor.Process(context.Background(), enrollment))

	// The step advanced despite the first action failing, and the second
	// action still ran.
	assert.Equal(t, 1, f.reload(t, enrollment.ID).CurrentStepIndex)

	snapshot, err := f.entities.Snapshot(context.Background(), models.EntityTypeContact, "c-1")
	require.NoError(t, err)
	assert.Contains(t, snapshot["tags"], "still-ran")

	logs, err := f.persistence.ExecutionsByEnrollment(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	outcomes := map[models.ExecutionOutcome]int{}
	for _, entry := range logs {
		outcomes[entry.Outcome]++
	}
	assert.Equal(t, 1, outcomes[models.OutcomeSuccess])
	assert.Equal(t, 1, outcomes[models.OutcomeFailure])
}

func TestRunSingleStep(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.entities.Put(models.EntityTypeContact, "c-1", map[string]any{})

	automation := &models.Automation{
		ID:       "auto-single",
		Name:     "Tag on create",
		Trigger:  trigger(models.TriggerContactCreated),
		IsActive: true,
		Steps: []models.Step{
			{
				StepIndex: 0,
				Name:      "tag",
				Type:      models.StepTypeAction,
				Actions:   []models.ActionItem{{Type: "add_tag", Config: map[string]any{"tag": "new"}}},
			},
		},
	}
	f.saveAutomation(t, automation)

	ok, err := f.executor.RunSingleStep(context.Background(), automation, models.EntityTypeContact, "c-1")
	require.NoError(t, err)
	assert.True(t, ok)

	logs, err := f.persistence.ExecutionsByAutomation(context.Background(), automation.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].EnrollmentID)

	saved, err := f.persistence.AutomationByID(context.Background(), automation.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.TotalExecutions)
	assert.Equal(t, int64(1), saved.SuccessfulExecutions)
}
