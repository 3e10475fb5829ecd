// Package events defines the entity-lifecycle feed and engine lifecycle events.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

type EventType string

// Bus topics.
const EntityTopic = "crmk.entity.events"
const EngineTopic = "crmk.engine.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Entity-lifecycle events emitted by the CRUD layer.
	EntityChangedEvent EventType = "entity.changed"

	// Engine lifecycle events.
	AutomationTriggeredEvent EventType = "automation.triggered"
	StepExecutedEvent        EventType = "step.executed"
	EnrollmentCompletedEvent EventType = "enrollment.completed"
	EnrollmentExitedEvent    EventType = "enrollment.exited"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EntityEvent is one entity mutation reported by the CRUD layer. Before is
// only populated for update and stage-change events; After always carries
// the current snapshot.
type EntityEvent struct {
	BaseEvent

	TriggerType models.TriggerType `json:"trigger_type"`
	EntityType  models.EntityType  `json:"entity_type"`
	EntityID    string             `json:"entity_id"`
	Before      map[string]any     `json:"before,omitempty"`
	After       map[string]any     `json:"after"`
}

func (e EntityEvent) GetType() EventType {
	return EntityChangedEvent
}

// Snapshot returns the attribute map trigger filters are evaluated
// against. Stage-change events get fromStage/toStage merged in so authors
// can filter on the transition itself.
func (e EntityEvent) Snapshot() map[string]any {
	if e.TriggerType != models.TriggerDealStageChanged {
		return e.After
	}

	merged := make(map[string]any, len(e.After)+2)
	for k, v := range e.After {
		merged[k] = v
	}

	if e.Before != nil {
		merged["fromStage"] = e.Before["stage"]
	}

	merged["toStage"] = e.After["stage"]

	return merged
}

// AutomationTriggered is published when the matcher accepts an event for
// an automation, either creating an enrollment or running a single-step
// automation inline.
type AutomationTriggered struct {
	BaseEvent

	AutomationID string            `json:"automation_id"`
	EnrollmentID string            `json:"enrollment_id,omitempty"`
	EntityType   models.EntityType `json:"entity_type"`
	EntityID     string            `json:"entity_id"`
}

func (a AutomationTriggered) GetType() EventType {
	return AutomationTriggeredEvent
}

// StepExecuted is published after the executor advances an enrollment by
// one step.
type StepExecuted struct {
	BaseEvent

	AutomationID string          `json:"automation_id"`
	EnrollmentID string          `json:"enrollment_id"`
	StepIndex    int             `json:"step_index"`
	StepType     models.StepType `json:"step_type"`
}

func (s StepExecuted) GetType() EventType {
	return StepExecutedEvent
}

type EnrollmentCompleted struct {
	BaseEvent

	AutomationID string `json:"automation_id"`
	EnrollmentID string `json:"enrollment_id"`
}

func (e EnrollmentCompleted) GetType() EventType {
	return EnrollmentCompletedEvent
}

type EnrollmentExited struct {
	BaseEvent

	AutomationID string `json:"automation_id"`
	EnrollmentID string `json:"enrollment_id"`
	ExitReason   string `json:"exit_reason"`
}

func (e EnrollmentExited) GetType() EventType {
	return EnrollmentExitedEvent
}
