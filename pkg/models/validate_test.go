package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func validMultiStep() *Automation {
	return &Automation{
		Name:        "Lead follow-up",
		Trigger:     Trigger{Type: TriggerContactCreated},
		IsActive:    true,
		IsMultiStep: true,
		Steps: []Step{
			{
				StepIndex:     0,
				Name:          "tag lead",
				Type:          StepTypeAction,
				Actions:       []ActionItem{{Type: ActionTypeAddTag, Config: map[string]any{"tag": "lead"}}},
				NextStepIndex: intPtr(1),
			},
			{
				StepIndex:     1,
				Name:          "wait a day",
				Type:          StepTypeDelay,
				Delay:         &DelayConfig{Value: 1, Unit: DelayUnitDays},
				NextStepIndex: intPtr(2),
			},
			{
				StepIndex: 2,
				Name:      "qualified?",
				Type:      StepTypeCondition,
				Conditions: []Condition{
					{Field: "stage", Operator: OperatorEquals, Value: "qualified"},
				},
				ConditionTargets: &ConditionTargets{True: nil, False: nil},
			},
		},
	}
}

func TestAutomationValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid multi-step automation", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, validMultiStep().Validate())
	})

	t.Run("unknown trigger type", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Trigger.Type = "contact_deleted"

		err := a.Validate()
		require.ErrorIs(t, err, ErrInvalidDefinition)
		assert.Contains(t, err.Error(), "unknown trigger type")
	})

	t.Run("unknown operator in trigger filter", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Trigger.Filter = []Condition{{Field: "stage", Operator: "matches", Value: "x"}}

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)
	})

	t.Run("second condition requires logic", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.ExitCriteria = []Condition{
			{Field: "stage", Operator: OperatorEquals, Value: "won"},
			{Field: "value", Operator: OperatorGreaterThan, Value: 10},
		}

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)
	})

	t.Run("no steps", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Steps = nil

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)
	})

	t.Run("sparse step indices", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Steps[2].StepIndex = 5

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)
	})

	t.Run("duplicate step indices", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Steps[1].StepIndex = 0

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)
	})

	t.Run("dangling next step index", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Steps[0].NextStepIndex = intPtr(9)

		err := a.Validate()
		require.ErrorIs(t, err, ErrInvalidDefinition)
		assert.Contains(t, err.Error(), "nonexistent step")
	})

	t.Run("action step without actions", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Steps[0].Actions = nil

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)
	})

	t.Run("delay step with zero value", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Steps[1].Delay.Value = 0

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)
	})

	t.Run("delay step with unknown unit", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Steps[1].Delay.Unit = "weeks"

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)
	})

	t.Run("condition step without targets", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Steps[2].ConditionTargets = nil

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)
	})

	t.Run("branch target referencing unknown case", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.Steps[2] = Step{
			StepIndex: 2,
			Name:      "route by stage",
			Type:      StepTypeBranch,
			BranchConfig: []BranchCase{
				{Name: "hot", Conditions: []Condition{{Field: "value", Operator: OperatorGreaterThan, Value: 1000}}},
			},
			BranchTargets: map[string]*int{"hot": nil, "cold": intPtr(0)},
		}

		err := a.Validate()
		require.ErrorIs(t, err, ErrInvalidDefinition)
		assert.Contains(t, err.Error(), "cold")
	})

	t.Run("single-step must be one action step", func(t *testing.T) {
		t.Parallel()

		a := validMultiStep()
		a.IsMultiStep = false

		require.ErrorIs(t, a.Validate(), ErrInvalidDefinition)

		a.Steps = a.Steps[:1]
		a.Steps[0].NextStepIndex = nil
		require.NoError(t, a.Validate())
	})
}

func TestDelayConfigDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   DelayConfig
		expected time.Duration
	}{
		{"minutes", DelayConfig{Value: 30, Unit: DelayUnitMinutes}, 30 * time.Minute},
		{"two hours", DelayConfig{Value: 2, Unit: DelayUnitHours}, 2 * time.Hour},
		{"days are exactly 24h", DelayConfig{Value: 3, Unit: DelayUnitDays}, 72 * time.Hour},
		{"unknown unit", DelayConfig{Value: 1, Unit: "weeks"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.config.Duration())
		})
	}
}

func TestAutomationHelpers(t *testing.T) {
	t.Parallel()

	a := validMultiStep()

	step, ok := a.StepAt(1)
	require.True(t, ok)
	assert.Equal(t, StepTypeDelay, step.Type)

	_, ok = a.StepAt(9)
	assert.False(t, ok)

	assert.Equal(t, time.Duration(0), a.MaxDuration())

	a.MaxDurationDays = intPtr(7)
	assert.Equal(t, 7*24*time.Hour, a.MaxDuration())

	assert.Equal(t, EntityTypeContact, TriggerContactUpdated.EntityType())
	assert.Equal(t, EntityTypeDeal, TriggerDealStageChanged.EntityType())
}
