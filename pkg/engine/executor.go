// Package engine implements the runtime half of the automation service:
// matching entity events to automations, enrolling entities, and walking
// enrollments through their step graphs one step at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
	"github.com/magnusmagz/crm-k-sub002/pkg/conditions"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/eventbus"
	"github.com/magnusmagz/crm-k-sub002/pkg/events"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/otelhelper"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
	"github.com/magnusmagz/crm-k-sub002/pkg/registry"
)

const (
	defaultActionTimeout = 30 * time.Second

	// How long a missing-entity enrollment waits before the next attempt
	// when the automation has not opted into safety exits.
	defaultRetryInterval = 5 * time.Minute
)

// Executor advances one enrollment by exactly one step per Process call.
// Repeated dispatch of the same enrollment is serialized by the
// scheduler's claim, so Process never races itself for a given row.
type Executor struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	entities    entities.Service
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	exits       *ExitEvaluator
	tracer      trace.Tracer

	actionTimeout time.Duration
	retryInterval time.Duration
	now           func() time.Time
}

func NewExecutor(
	logger *slog.Logger,
	persist persistence.Persistence,
	entityService entities.Service,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
) *Executor {
	return &Executor{
		logger:        logger.With("module", "step_executor"),
		persistence:   persist,
		entities:      entityService,
		registry:      reg,
		publisher:     publisher,
		exits:         NewExitEvaluator(logger),
		tracer:        otel.Tracer("crmk-engine"),
		actionTimeout: defaultActionTimeout,
		retryInterval: defaultRetryInterval,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Process runs one enrollment tick: the exit gate, then the current step.
// The enrollment must already be claimed by the caller.
func (e *Executor) Process(ctx context.Context, enrollment *models.Enrollment) (err error) {
	now := e.now()

	ctx, span := e.tracer.Start(ctx, "enrollment.process", trace.WithAttributes(
		attribute.String(otelhelper.EnrollmentIDKey, enrollment.ID),
		attribute.String(otelhelper.AutomationIDKey, enrollment.AutomationID),
		attribute.Int(otelhelper.StepIndexKey, enrollment.CurrentStepIndex),
	))

	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	logger := e.logger.With(
		"enrollment_id", enrollment.ID,
		"automation_id", enrollment.AutomationID,
		"step_index", enrollment.CurrentStepIndex,
	)

	automation, err := e.persistence.AutomationByID(ctx, enrollment.AutomationID)
	if errors.Is(err, persistence.ErrNotFound) {
		logger.Warn("Automation no longer exists, exiting enrollment")

		return e.exitEnrollment(ctx, nil, enrollment, models.ExitReasonAutomationInactive, now)
	}

	if err != nil {
		return fmt.Errorf("failed to fetch automation %s: %w", enrollment.AutomationID, err)
	}

	snapshot, err := e.entities.Snapshot(ctx, enrollment.EntityType, enrollment.EntityID)
	entityMissing := errors.Is(err, entities.ErrEntityNotFound)

	if err != nil && !entityMissing {
		return fmt.Errorf("failed to fetch entity snapshot: %w", err)
	}

	if reason := e.exits.Check(automation, enrollment, snapshot, entityMissing, now); reason != "" {
		logger.Info("Exit criteria met, exiting enrollment", "exit_reason", reason)

		return e.exitEnrollment(ctx, automation, enrollment, reason, now)
	}

	if entityMissing {
		// Without a snapshot no step can run. Try again later; the
		// max-duration check keeps this from retrying forever.
		e.appendLog(ctx, &models.ExecutionLogEntry{
			AutomationID: enrollment.AutomationID,
			EnrollmentID: enrollment.ID,
			EntityType:   enrollment.EntityType,
			EntityID:     enrollment.EntityID,
			StepIndex:    enrollment.CurrentStepIndex,
			Outcome:      models.OutcomeFailure,
			Detail:       "entity not found",
		})

		due := now.Add(e.retryInterval)
		enrollment.NextDueAt = &due
		enrollment.UpdatedAt = now

		return e.persistence.UpdateEnrollment(ctx, enrollment)
	}

	step, ok := automation.StepAt(enrollment.CurrentStepIndex)
	if !ok {
		logger.Error("Enrollment points at a nonexistent step, exiting")

		return e.exitEnrollment(ctx, automation, enrollment, models.ExitReasonInvalidStep, now)
	}

	switch step.Type {
	case models.StepTypeAction:
		return e.processActionStep(ctx, automation, enrollment, step, snapshot, now)
	case models.StepTypeDelay:
		return e.processDelayStep(ctx, automation, enrollment, step, now)
	case models.StepTypeCondition:
		return e.processConditionStep(ctx, automation, enrollment, step, snapshot, now)
	case models.StepTypeBranch:
		return e.processBranchStep(ctx, automation, enrollment, step, snapshot, now)
	default:
		logger.Error("Unknown step type, exiting enrollment", "step_type", step.Type)

		return e.exitEnrollment(ctx, automation, enrollment, models.ExitReasonInvalidStep, now)
	}
}

func (e *Executor) processActionStep(
	ctx context.Context,
	automation *models.Automation,
	enrollment *models.Enrollment,
	step *models.Step,
	snapshot map[string]any,
	now time.Time,
) error {
	// Action failures are logged per action and never block progression.
	e.runStepActions(ctx, automation, enrollment.ID, enrollment.EntityType, enrollment.EntityID, snapshot, step)

	return e.advance(ctx, automation, enrollment, step, step.NextStepIndex, now)
}

func (e *Executor) processDelayStep(
	ctx context.Context,
	automation *models.Automation,
	enrollment *models.Enrollment,
	step *models.Step,
	now time.Time,
) error {
	if step.Delay == nil {
		return e.exitEnrollment(ctx, automation, enrollment, models.ExitReasonInvalidStep, now)
	}

	if enrollment.DelayArmedAt == nil {
		// First visit arms the delay; the enrollment stays on this step
		// until the scheduler redelivers it at the due time.
		armedAt := now
		due := now.Add(step.Delay.Duration())
		enrollment.DelayArmedAt = &armedAt
		enrollment.NextDueAt = &due
		enrollment.UpdatedAt = now

		if err := e.persistence.UpdateEnrollment(ctx, enrollment); err != nil {
			return fmt.Errorf("failed to arm delay: %w", err)
		}

		e.appendLog(ctx, &models.ExecutionLogEntry{
			AutomationID: enrollment.AutomationID,
			EnrollmentID: enrollment.ID,
			EntityType:   enrollment.EntityType,
			EntityID:     enrollment.EntityID,
			StepIndex:    step.StepIndex,
			Outcome:      models.OutcomeScheduled,
			Detail:       "delay until " + due.Format(time.RFC3339),
		})

		return nil
	}

	e.appendLog(ctx, &models.ExecutionLogEntry{
		AutomationID: enrollment.AutomationID,
		EnrollmentID: enrollment.ID,
		EntityType:   enrollment.EntityType,
		EntityID:     enrollment.EntityID,
		StepIndex:    step.StepIndex,
		Outcome:      models.OutcomeSuccess,
		Detail:       "delay elapsed",
	})

	return e.advance(ctx, automation, enrollment, step, step.NextStepIndex, now)
}

func (e *Executor) processConditionStep(
	ctx context.Context,
	automation *models.Automation,
	enrollment *models.Enrollment,
	step *models.Step,
	snapshot map[string]any,
	now time.Time,
) error {
	detail := ""

	met, err := conditions.Evaluate(step.Conditions, snapshot)
	if err != nil {
		// Fail closed: an unevaluable condition takes the false edge.
		met = false
		detail = "evaluation error: " + err.Error() + "; "
	}

	var target *int
	if step.ConditionTargets != nil {
		if met {
			target = step.ConditionTargets.True
		} else {
			target = step.ConditionTargets.False
		}
	}

	e.appendLog(ctx, &models.ExecutionLogEntry{
		AutomationID: enrollment.AutomationID,
		EnrollmentID: enrollment.ID,
		EntityType:   enrollment.EntityType,
		EntityID:     enrollment.EntityID,
		StepIndex:    step.StepIndex,
		Outcome:      models.OutcomeSuccess,
		Detail:       fmt.Sprintf("%scondition evaluated %t", detail, met),
	})

	return e.advance(ctx, automation, enrollment, step, target, now)
}

func (e *Executor) processBranchStep(
	ctx context.Context,
	automation *models.Automation,
	enrollment *models.Enrollment,
	step *models.Step,
	snapshot map[string]any,
	now time.Time,
) error {
	target := step.DefaultTarget
	detail := "no branch matched"

	for _, branch := range step.BranchConfig {
		matched, err := conditions.Evaluate(branch.Conditions, snapshot)
		if err != nil {
			e.logger.Warn("Failed to evaluate branch conditions",
				"enrollment_id", enrollment.ID,
				"branch", branch.Name,
				"error", err)

			continue
		}

		if matched {
			target = step.BranchTargets[branch.Name]
			detail = "matched branch '" + branch.Name + "'"

			break
		}
	}

	e.appendLog(ctx, &models.ExecutionLogEntry{
		AutomationID: enrollment.AutomationID,
		EnrollmentID: enrollment.ID,
		EntityType:   enrollment.EntityType,
		EntityID:     enrollment.EntityID,
		StepIndex:    step.StepIndex,
		Outcome:      models.OutcomeSuccess,
		Detail:       detail,
	})

	return e.advance(ctx, automation, enrollment, step, target, now)
}

// RunSingleStep executes a single-step automation's actions against the
// entity without an enrollment. Log entries carry an empty enrollment
// id. It reports whether every action succeeded.
func (e *Executor) RunSingleStep(
	ctx context.Context,
	automation *models.Automation,
	entityType models.EntityType,
	entityID string,
) (bool, error) {
	step, ok := automation.StepAt(0)
	if !ok {
		return false, fmt.Errorf("automation %s has no step 0", automation.ID)
	}

	snapshot, err := e.entities.Snapshot(ctx, entityType, entityID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch entity snapshot: %w", err)
	}

	allSucceeded := e.runStepActions(ctx, automation, "", entityType, entityID, snapshot, step)

	if err := e.persistence.RecordExecution(ctx, automation.ID, allSucceeded, e.now()); err != nil {
		e.logger.Warn("Failed to record execution counters", "automation_id", automation.ID, "error", err)
	}

	return allSucceeded, nil
}

// runStepActions executes every action of a step in order, logging each
// outcome separately. It reports whether all actions succeeded.
func (e *Executor) runStepActions(
	ctx context.Context,
	automation *models.Automation,
	enrollmentID string,
	entityType models.EntityType,
	entityID string,
	snapshot map[string]any,
	step *models.Step,
) bool {
	allSucceeded := true

	for _, item := range step.Actions {
		entry := &models.ExecutionLogEntry{
			AutomationID: automation.ID,
			EnrollmentID: enrollmentID,
			EntityType:   entityType,
			EntityID:     entityID,
			StepIndex:    step.StepIndex,
			ActionType:   item.Type,
			Outcome:      models.OutcomeSuccess,
		}

		if err := e.runAction(ctx, automation, enrollmentID, entityType, entityID, snapshot, item); err != nil {
			allSucceeded = false
			entry.Outcome = models.OutcomeFailure
			entry.Detail = err.Error()

			e.logger.Warn("Action failed",
				"automation_id", automation.ID,
				"enrollment_id", enrollmentID,
				"action_type", item.Type,
				"error", err)
		}

		e.appendLog(ctx, entry)
	}

	return allSucceeded
}

func (e *Executor) runAction(
	ctx context.Context,
	automation *models.Automation,
	enrollmentID string,
	entityType models.EntityType,
	entityID string,
	snapshot map[string]any,
	item models.ActionItem,
) error {
	action, err := e.registry.CreateAction(item.Type, item.Config)
	if err != nil {
		return fmt.Errorf("failed to create action: %w", err)
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	_, err = action.Execute(actionCtx, actions.Context{
		AutomationID: automation.ID,
		EnrollmentID: enrollmentID,
		EntityType:   entityType,
		EntityID:     entityID,
		Snapshot:     snapshot,
		Logger:       e.logger.With("automation_id", automation.ID, "action_type", item.Type),
	})

	return err
}

// advance moves the enrollment to the target step, or completes it when
// the target is nil.
func (e *Executor) advance(
	ctx context.Context,
	automation *models.Automation,
	enrollment *models.Enrollment,
	step *models.Step,
	target *int,
	now time.Time,
) error {
	if target == nil {
		enrollment.Complete(now)

		if err := e.persistence.UpdateEnrollment(ctx, enrollment); err != nil {
			return fmt.Errorf("failed to complete enrollment: %w", err)
		}

		if err := e.persistence.RecordExecution(ctx, automation.ID, true, now); err != nil {
			e.logger.Warn("Failed to record execution counters", "automation_id", automation.ID, "error", err)
		}

		e.publish(ctx, enrollment.ID, events.StepExecuted{
			BaseEvent:    events.NewBaseEvent(events.StepExecutedEvent),
			AutomationID: automation.ID,
			EnrollmentID: enrollment.ID,
			StepIndex:    step.StepIndex,
			StepType:     step.Type,
		})
		e.publish(ctx, enrollment.ID, events.EnrollmentCompleted{
			BaseEvent:    events.NewBaseEvent(events.EnrollmentCompletedEvent),
			AutomationID: automation.ID,
			EnrollmentID: enrollment.ID,
		})

		return nil
	}

	due := now
	enrollment.CurrentStepIndex = *target
	enrollment.NextDueAt = &due
	enrollment.DelayArmedAt = nil
	enrollment.UpdatedAt = now

	if err := e.persistence.UpdateEnrollment(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to advance enrollment: %w", err)
	}

	e.publish(ctx, enrollment.ID, events.StepExecuted{
		BaseEvent:    events.NewBaseEvent(events.StepExecutedEvent),
		AutomationID: automation.ID,
		EnrollmentID: enrollment.ID,
		StepIndex:    step.StepIndex,
		StepType:     step.Type,
	})

	return nil
}

// exitEnrollment force-exits the enrollment. automation may be nil when
// the definition itself is gone.
func (e *Executor) exitEnrollment(
	ctx context.Context,
	automation *models.Automation,
	enrollment *models.Enrollment,
	reason string,
	now time.Time,
) error {
	enrollment.Exit(reason, now)

	if err := e.persistence.UpdateEnrollment(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to exit enrollment: %w", err)
	}

	e.appendLog(ctx, &models.ExecutionLogEntry{
		AutomationID: enrollment.AutomationID,
		EnrollmentID: enrollment.ID,
		EntityType:   enrollment.EntityType,
		EntityID:     enrollment.EntityID,
		StepIndex:    enrollment.CurrentStepIndex,
		Outcome:      models.OutcomeExited,
		Detail:       reason,
	})

	if automation != nil {
		if err := e.persistence.RecordExecution(ctx, automation.ID, false, now); err != nil {
			e.logger.Warn("Failed to record execution counters", "automation_id", automation.ID, "error", err)
		}
	}

	e.publish(ctx, enrollment.ID, events.EnrollmentExited{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentExitedEvent),
		AutomationID: enrollment.AutomationID,
		EnrollmentID: enrollment.ID,
		ExitReason:   reason,
	})

	return nil
}

// appendLog writes an execution-log entry. Log failures never abort the
// step that produced them.
func (e *Executor) appendLog(ctx context.Context, entry *models.ExecutionLogEntry) {
	if err := e.persistence.AppendExecution(ctx, entry); err != nil {
		e.logger.Warn("Failed to append execution log entry",
			"automation_id", entry.AutomationID,
			"enrollment_id", entry.EnrollmentID,
			"error", err)
	}
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.Warn("Failed to publish engine event", "event_type", event.GetType(), "error", err)
	}
}
