package engine

import (
	"log/slog"
	"time"

	"github.com/magnusmagz/crm-k-sub002/pkg/conditions"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

// ExitEvaluator gates every step advance. Checks run in a fixed order:
// author-configured exit criteria first, then the max-duration timeout,
// then the built-in safety guards (which only apply when the automation
// opted in via SafetyExitEnabled).
type ExitEvaluator struct {
	logger *slog.Logger
}

func NewExitEvaluator(logger *slog.Logger) *ExitEvaluator {
	return &ExitEvaluator{logger: logger.With("module", "exit_evaluator")}
}

// Check returns the exit reason for the enrollment, or "" when it may
// proceed. entityMissing reports that the entity snapshot could not be
// fetched; criteria are skipped in that case since there is nothing to
// evaluate them against.
func (e *ExitEvaluator) Check(
	automation *models.Automation,
	enrollment *models.Enrollment,
	snapshot map[string]any,
	entityMissing bool,
	now time.Time,
) string {
	if len(automation.ExitCriteria) > 0 && !entityMissing {
		met, err := conditions.Evaluate(automation.ExitCriteria, snapshot)
		if err != nil {
			// Fail closed: an unevaluable criterion never exits.
			e.logger.Warn("Failed to evaluate exit criteria",
				"automation_id", automation.ID,
				"enrollment_id", enrollment.ID,
				"error", err)
		} else if met {
			return models.ExitReasonCriteriaMet
		}
	}

	if maxDuration := automation.MaxDuration(); maxDuration > 0 {
		if now.Sub(enrollment.EnrolledAt) >= maxDuration {
			return models.ExitReasonMaxDurationExceeded
		}
	}

	if automation.SafetyExitEnabled {
		if !automation.IsActive {
			return models.ExitReasonAutomationInactive
		}

		if entityMissing {
			return models.ExitReasonEntityMissing
		}
	}

	return ""
}
