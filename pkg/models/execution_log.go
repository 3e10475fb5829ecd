package models

import "time"

// ExecutionOutcome classifies one execution-log entry.
type ExecutionOutcome string

const (
	OutcomeSuccess   ExecutionOutcome = "success"
	OutcomeFailure   ExecutionOutcome = "failure"
	OutcomeSkipped   ExecutionOutcome = "skipped"
	OutcomeScheduled ExecutionOutcome = "scheduled"
	OutcomeExited    ExecutionOutcome = "exited"
)

// ExecutionLogEntry is one append-only record of engine activity. Entries
// back the author-facing debug views and the aggregate counters; the
// engine never mutates or deletes them.
//
// EnrollmentID is empty for single-step automations, which run their
// actions at trigger time without creating an enrollment.
type ExecutionLogEntry struct {
	ID           string           `json:"id"`
	AutomationID string           `json:"automation_id"`
	EnrollmentID string           `json:"enrollment_id,omitempty"`
	EntityType   EntityType       `json:"entity_type"`
	EntityID     string           `json:"entity_id"`
	StepIndex    int              `json:"step_index"`
	ActionType   string           `json:"action_type,omitempty"`
	Outcome      ExecutionOutcome `json:"outcome"`
	Detail       string           `json:"detail,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}
