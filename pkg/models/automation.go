// Package models defines the core domain models for CRM workflow automation.
package models

import "time"

// TriggerType identifies the entity-lifecycle event that starts an automation.
type TriggerType string

const (
	TriggerContactCreated   TriggerType = "contact_created"
	TriggerContactUpdated   TriggerType = "contact_updated"
	TriggerDealCreated      TriggerType = "deal_created"
	TriggerDealUpdated      TriggerType = "deal_updated"
	TriggerDealStageChanged TriggerType = "deal_stage_changed"
)

// KnownTriggerTypes lists every trigger type the engine accepts.
var KnownTriggerTypes = []TriggerType{
	TriggerContactCreated,
	TriggerContactUpdated,
	TriggerDealCreated,
	TriggerDealUpdated,
	TriggerDealStageChanged,
}

// EntityType returns the entity type a trigger applies to.
func (t TriggerType) EntityType() EntityType {
	switch t {
	case TriggerContactCreated, TriggerContactUpdated:
		return EntityTypeContact
	case TriggerDealCreated, TriggerDealUpdated, TriggerDealStageChanged:
		return EntityTypeDeal
	}

	return ""
}

// Trigger couples a trigger type with an optional trigger-scoped filter.
// The filter is evaluated against the event's entity snapshot; for
// deal_stage_changed events the snapshot additionally carries the
// fromStage and toStage attributes.
type Trigger struct {
	Type   TriggerType `json:"type"             validate:"required"`
	Filter []Condition `json:"filter,omitempty"`
}

// Automation is a declared rule: when the trigger fires and its filter
// holds, enroll the entity and walk the step graph.
//
// The engine never mutates an automation definition except for the
// execution counters and the isActive toggle.
type Automation struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"                   validate:"required,min=3"`
	Description          string      `json:"description"`
	Trigger              Trigger     `json:"trigger"                validate:"required"`
	IsActive             bool        `json:"is_active"`
	IsMultiStep          bool        `json:"is_multi_step"`
	Steps                []Step      `json:"steps"`
	ExitCriteria         []Condition `json:"exit_criteria,omitempty"`
	MaxDurationDays      *int        `json:"max_duration_days,omitempty"`
	SafetyExitEnabled    bool        `json:"safety_exit_enabled"`
	TotalExecutions      int64       `json:"total_executions"`
	SuccessfulExecutions int64       `json:"successful_executions"`
	LastExecutedAt       *time.Time  `json:"last_executed_at,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	DeletedAt            *time.Time  `json:"deleted_at,omitempty"`
}

// StepAt returns the step with the given index, if it exists.
func (a *Automation) StepAt(index int) (*Step, bool) {
	for i := range a.Steps {
		if a.Steps[i].StepIndex == index {
			return &a.Steps[i], true
		}
	}

	return nil, false
}

// MaxDuration converts MaxDurationDays into a duration. Zero means unlimited.
func (a *Automation) MaxDuration() time.Duration {
	if a.MaxDurationDays == nil || *a.MaxDurationDays <= 0 {
		return 0
	}

	return time.Duration(*a.MaxDurationDays) * 24 * time.Hour
}
