// Package web provides the HTTP surface for automation management and
// the author-facing debug views.
package web

import "github.com/magnusmagz/crm-k-sub002/pkg/models"

// CreateAutomationRequest is the request body for creating an automation.
type CreateAutomationRequest struct {
	Name              string             `json:"name"                validate:"required,min=3"`
	Description       string             `json:"description"`
	Trigger           models.Trigger     `json:"trigger"             validate:"required"`
	IsActive          bool               `json:"is_active"`
	IsMultiStep       bool               `json:"is_multi_step"`
	Steps             []models.Step      `json:"steps"               validate:"required,min=1"`
	ExitCriteria      []models.Condition `json:"exit_criteria,omitempty"`
	MaxDurationDays   *int               `json:"max_duration_days,omitempty"`
	SafetyExitEnabled bool               `json:"safety_exit_enabled"`
}

// UpdateAutomationRequest supports partial updates. Steps, trigger and
// exit criteria are replaced wholesale when present.
type UpdateAutomationRequest struct {
	Name              *string            `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description       *string            `json:"description,omitempty"`
	Trigger           *models.Trigger    `json:"trigger,omitempty"`
	IsMultiStep       *bool              `json:"is_multi_step,omitempty"`
	Steps             []models.Step      `json:"steps,omitempty"`
	ExitCriteria      []models.Condition `json:"exit_criteria,omitempty"`
	MaxDurationDays   *int               `json:"max_duration_days,omitempty"`
	SafetyExitEnabled *bool              `json:"safety_exit_enabled,omitempty"`
}

// InjectEventRequest is the request body for pushing one entity-lifecycle
// event through the matcher synchronously.
type InjectEventRequest struct {
	TriggerType models.TriggerType `json:"trigger_type" validate:"required"`
	EntityType  models.EntityType  `json:"entity_type,omitempty"`
	EntityID    string             `json:"entity_id"    validate:"required"`
	Before      map[string]any     `json:"before,omitempty"`
	After       map[string]any     `json:"after"        validate:"required"`
}

// TestAutomationRequest names the entity a test pass runs against.
type TestAutomationRequest struct {
	EntityType models.EntityType `json:"entity_type" validate:"required,oneof=contact deal"`
	EntityID   string            `json:"entity_id"   validate:"required"`
}

// TestAutomationResponse returns the enrollment state after one forced
// pass plus the log entries it produced.
type TestAutomationResponse struct {
	Enrollment *models.Enrollment          `json:"enrollment"`
	Executions []*models.ExecutionLogEntry `json:"executions"`
}
