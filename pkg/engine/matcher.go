package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/magnusmagz/crm-k-sub002/pkg/conditions"
	"github.com/magnusmagz/crm-k-sub002/pkg/eventbus"
	"github.com/magnusmagz/crm-k-sub002/pkg/events"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/otelhelper"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
)

// Matcher consumes entity-lifecycle events and decides which automations
// fire. Multi-step automations get an enrollment at step 0; single-step
// automations run their actions inline without one.
type Matcher struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    *Executor
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
}

func NewMatcher(
	logger *slog.Logger,
	persist persistence.Persistence,
	executor *Executor,
	publisher eventbus.EventPublisher,
) *Matcher {
	return &Matcher{
		logger:      logger.With("module", "trigger_matcher"),
		persistence: persist,
		executor:    executor,
		publisher:   publisher,
		tracer:      otel.Tracer("crmk-engine"),
	}
}

// HandleEvent is the eventbus handler for entity-changed events.
func (m *Matcher) HandleEvent(ctx context.Context, event any) error {
	entityEvent, ok := event.(*events.EntityEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	return m.Match(ctx, entityEvent)
}

// Match runs one entity event against every active automation with a
// matching trigger type. A failure against one automation never blocks
// the others.
func (m *Matcher) Match(ctx context.Context, event *events.EntityEvent) error {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "trigger.match",
		attribute.String(otelhelper.TriggerTypeKey, string(event.TriggerType)),
		attribute.String(otelhelper.EntityTypeKey, string(event.EntityType)),
		attribute.String(otelhelper.EntityIDKey, event.EntityID),
	)
	defer span.End()

	logger := m.logger.With(
		"trigger_type", event.TriggerType,
		"entity_type", event.EntityType,
		"entity_id", event.EntityID,
	)

	automations, err := m.persistence.ActiveAutomationsByTrigger(ctx, event.TriggerType)
	if err != nil {
		return fmt.Errorf("failed to fetch automations for trigger '%s': %w", event.TriggerType, err)
	}

	logger.Debug("Matching entity event against automations", "candidates", len(automations))

	snapshot := event.Snapshot()
	matched := 0

	for _, automation := range automations {
		if len(automation.Trigger.Filter) > 0 {
			pass, err := conditions.Evaluate(automation.Trigger.Filter, snapshot)
			if err != nil {
				// Fail closed: an unevaluable filter never fires.
				logger.Warn("Failed to evaluate trigger filter",
					"automation_id", automation.ID,
					"error", err)

				continue
			}

			if !pass {
				continue
			}
		}

		matched++

		if err := m.fire(ctx, automation, event, snapshot); err != nil {
			logger.Error("Failed to fire automation",
				"automation_id", automation.ID,
				"error", err)
		}
	}

	logger.Info("Completed trigger matching", "candidates", len(automations), "matched", matched)

	return nil
}

func (m *Matcher) fire(
	ctx context.Context,
	automation *models.Automation,
	event *events.EntityEvent,
	snapshot map[string]any,
) error {
	if !automation.IsMultiStep {
		return m.runSingleStep(ctx, automation, event, snapshot)
	}

	now := m.executor.now()
	due := now

	enrollment := &models.Enrollment{
		AutomationID:     automation.ID,
		EntityType:       event.EntityType,
		EntityID:         event.EntityID,
		CurrentStepIndex: 0,
		Status:           models.EnrollmentStatusActive,
		EnrolledAt:       now,
		NextDueAt:        &due,
	}

	err := m.persistence.CreateEnrollment(ctx, enrollment)
	if errors.Is(err, persistence.ErrDuplicateEnrollment) {
		m.logger.Debug("Entity already enrolled, skipping",
			"automation_id", automation.ID,
			"entity_id", event.EntityID)

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	m.logger.Info("Enrolled entity",
		"automation_id", automation.ID,
		"enrollment_id", enrollment.ID,
		"entity_type", event.EntityType,
		"entity_id", event.EntityID)

	m.publishTriggered(ctx, automation, enrollment.ID, event)

	return nil
}

// runSingleStep executes a single-step automation's actions at trigger
// time. No enrollment row is created; log entries carry an empty
// enrollment id. The event snapshot is authoritative for the filter, but
// actions run against the entity's current state.
func (m *Matcher) runSingleStep(
	ctx context.Context,
	automation *models.Automation,
	event *events.EntityEvent,
	snapshot map[string]any,
) error {
	step, ok := automation.StepAt(0)
	if !ok {
		return fmt.Errorf("automation %s has no step 0", automation.ID)
	}

	allSucceeded := m.executor.runStepActions(ctx, automation, "", event.EntityType, event.EntityID, snapshot, step)

	now := m.executor.now()
	if err := m.persistence.RecordExecution(ctx, automation.ID, allSucceeded, now); err != nil {
		m.logger.Warn("Failed to record execution counters", "automation_id", automation.ID, "error", err)
	}

	m.publishTriggered(ctx, automation, "", event)

	return nil
}

func (m *Matcher) publishTriggered(
	ctx context.Context,
	automation *models.Automation,
	enrollmentID string,
	event *events.EntityEvent,
) {
	if m.publisher == nil {
		return
	}

	triggered := events.AutomationTriggered{
		BaseEvent:    events.NewBaseEvent(events.AutomationTriggeredEvent),
		AutomationID: automation.ID,
		EnrollmentID: enrollmentID,
		EntityType:   event.EntityType,
		EntityID:     event.EntityID,
	}

	if err := m.publisher.Publish(ctx, automation.ID, triggered); err != nil {
		m.logger.Warn("Failed to publish triggered event", "automation_id", automation.ID, "error", err)
	}
}
