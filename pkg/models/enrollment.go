package models

import "time"

// EntityType is the kind of CRM entity an enrollment is bound to.
type EntityType string

const (
	EntityTypeContact EntityType = "contact"
	EntityTypeDeal    EntityType = "deal"
)

// EnrollmentStatus is the lifecycle state of an enrollment. Terminal
// states (completed, exited) are immutable; re-enrollment creates a
// fresh row.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusExited    EnrollmentStatus = "exited"
)

// Exit reasons recorded on force-exited enrollments.
const (
	ExitReasonCriteriaMet         = "criteria_met"
	ExitReasonMaxDurationExceeded = "max_duration_exceeded"
	ExitReasonEntityMissing       = "entity_missing"
	ExitReasonAutomationInactive  = "automation_inactive"
	ExitReasonInvalidStep         = "invalid_step"
)

// Enrollment binds one entity to one running automation instance and
// tracks its position in the step graph. At most one active enrollment
// exists per (automation, entityType, entityID); the store enforces this.
//
// ClaimedBy/ClaimedAt implement the worker claim: a worker must claim an
// enrollment before advancing it, and stale claims become reclaimable
// after the claim TTL.
type Enrollment struct {
	ID               string           `json:"id"`
	AutomationID     string           `json:"automation_id"`
	EntityType       EntityType       `json:"entity_type"`
	EntityID         string           `json:"entity_id"`
	CurrentStepIndex int              `json:"current_step_index"`
	Status           EnrollmentStatus `json:"status"`
	ExitReason       string           `json:"exit_reason,omitempty"`
	EnrolledAt       time.Time        `json:"enrolled_at"`
	NextDueAt        *time.Time       `json:"next_due_at,omitempty"`
	DelayArmedAt     *time.Time       `json:"delay_armed_at,omitempty"`
	ClaimedBy        string           `json:"claimed_by,omitempty"`
	ClaimedAt        *time.Time       `json:"claimed_at,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsTerminal reports whether the enrollment reached a final state.
func (e *Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentStatusCompleted || e.Status == EnrollmentStatusExited
}

// Complete moves the enrollment to the completed state.
func (e *Enrollment) Complete(now time.Time) {
	e.Status = EnrollmentStatusCompleted
	e.NextDueAt = nil
	e.DelayArmedAt = nil
	e.UpdatedAt = now
}

// Exit force-exits the enrollment with the given reason.
func (e *Enrollment) Exit(reason string, now time.Time) {
	e.Status = EnrollmentStatusExited
	e.ExitReason = reason
	e.NextDueAt = nil
	e.DelayArmedAt = nil
	e.UpdatedAt = now
}
