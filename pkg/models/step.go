package models

import "time"

// StepType enumerates the closed set of step kinds the executor understands.
type StepType string

const (
	StepTypeAction    StepType = "action"
	StepTypeDelay     StepType = "delay"
	StepTypeCondition StepType = "condition"
	StepTypeBranch    StepType = "branch"
)

// DelayUnit is the unit of a delay step's wait value.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// DelayConfig describes how long a delay step blocks an enrollment.
type DelayConfig struct {
	Value int       `json:"value" validate:"min=1"`
	Unit  DelayUnit `json:"unit"  validate:"required"`
}

// Duration converts the configured delay into a time.Duration.
// Days are exactly 24 hours; the engine works in UTC wall-clock time.
func (d DelayConfig) Duration() time.Duration {
	switch d.Unit {
	case DelayUnitMinutes:
		return time.Duration(d.Value) * time.Minute
	case DelayUnitHours:
		return time.Duration(d.Value) * time.Hour
	case DelayUnitDays:
		return time.Duration(d.Value) * 24 * time.Hour
	}

	return 0
}

// ConditionTargets holds the two outgoing edges of a condition step.
// A nil target means the enrollment completes on that branch.
type ConditionTargets struct {
	True  *int `json:"true"`
	False *int `json:"false"`
}

// BranchCase is one named sub-condition of a branch step. Cases are
// evaluated in declared order; the first match wins.
type BranchCase struct {
	Name       string      `json:"name"       validate:"required"`
	Conditions []Condition `json:"conditions"`
}

// Step is one node of an automation's step graph. Transitions are index
// lookups into the automation's dense, 0-based step list; a nil target is
// terminal. Cycles are permitted and bounded by exit criteria at runtime.
type Step struct {
	StepIndex int      `json:"step_index"`
	Name      string   `json:"name" validate:"required"`
	Type      StepType `json:"type" validate:"required"`

	// action and delay steps: single successor, nil = terminal.
	NextStepIndex *int `json:"next_step_index,omitempty"`

	// action steps.
	Actions []ActionItem `json:"actions,omitempty"`

	// delay steps.
	Delay *DelayConfig `json:"delay,omitempty"`

	// condition steps.
	Conditions       []Condition       `json:"conditions,omitempty"`
	ConditionTargets *ConditionTargets `json:"condition_targets,omitempty"`

	// branch steps.
	BranchConfig  []BranchCase    `json:"branch_config,omitempty"`
	BranchTargets map[string]*int `json:"branch_targets,omitempty"`
	DefaultTarget *int            `json:"default_target,omitempty"`
}
