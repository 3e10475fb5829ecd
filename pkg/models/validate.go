package models

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidDefinition is wrapped by every validation failure so callers
// can map them to a 400 response.
var ErrInvalidDefinition = errors.New("invalid automation definition")

// Validate performs save-time definition checks: dense step indices,
// dangling step-graph edges, per-type step shape, and known trigger types,
// operators and delay units. Runtime evaluation is defensive about these
// too, but definition errors must be surfaced to the author at save time,
// not tolerated silently.
func (a *Automation) Validate() error {
	if !slices.Contains(KnownTriggerTypes, a.Trigger.Type) {
		return definitionErrorf("unknown trigger type %q", a.Trigger.Type)
	}

	if err := validateConditions("trigger filter", a.Trigger.Filter); err != nil {
		return err
	}

	if err := validateConditions("exit criteria", a.ExitCriteria); err != nil {
		return err
	}

	if len(a.Steps) == 0 {
		return definitionErrorf("automation has no steps")
	}

	if !a.IsMultiStep && (len(a.Steps) != 1 || a.Steps[0].Type != StepTypeAction) {
		return definitionErrorf("single-step automation must have exactly one action step")
	}

	seen := make(map[int]bool, len(a.Steps))

	for i := range a.Steps {
		step := &a.Steps[i]

		if step.StepIndex < 0 || step.StepIndex >= len(a.Steps) {
			return definitionErrorf("step %q has index %d outside [0,%d)", step.Name, step.StepIndex, len(a.Steps))
		}

		if seen[step.StepIndex] {
			return definitionErrorf("duplicate step index %d", step.StepIndex)
		}

		seen[step.StepIndex] = true

		if err := a.validateStep(step); err != nil {
			return err
		}
	}

	return nil
}

func (a *Automation) validateStep(step *Step) error {
	switch step.Type {
	case StepTypeAction:
		if len(step.Actions) == 0 {
			return definitionErrorf("action step %d has no actions", step.StepIndex)
		}

		return a.validateTarget(step, step.NextStepIndex)

	case StepTypeDelay:
		if step.Delay == nil {
			return definitionErrorf("delay step %d has no delay config", step.StepIndex)
		}

		if step.Delay.Value <= 0 {
			return definitionErrorf("delay step %d has non-positive delay value", step.StepIndex)
		}

		if step.Delay.Duration() == 0 {
			return definitionErrorf("delay step %d has unknown unit %q", step.StepIndex, step.Delay.Unit)
		}

		return a.validateTarget(step, step.NextStepIndex)

	case StepTypeCondition:
		if err := validateConditions(fmt.Sprintf("step %d conditions", step.StepIndex), step.Conditions); err != nil {
			return err
		}

		if step.ConditionTargets == nil {
			return definitionErrorf("condition step %d has no branch targets", step.StepIndex)
		}

		if err := a.validateTarget(step, step.ConditionTargets.True); err != nil {
			return err
		}

		return a.validateTarget(step, step.ConditionTargets.False)

	case StepTypeBranch:
		if len(step.BranchConfig) == 0 {
			return definitionErrorf("branch step %d has no branch cases", step.StepIndex)
		}

		for _, branch := range step.BranchConfig {
			if branch.Name == "" {
				return definitionErrorf("branch step %d has an unnamed case", step.StepIndex)
			}

			if err := validateConditions(fmt.Sprintf("step %d branch %q", step.StepIndex, branch.Name), branch.Conditions); err != nil {
				return err
			}

			if err := a.validateTarget(step, step.BranchTargets[branch.Name]); err != nil {
				return err
			}
		}

		for name := range step.BranchTargets {
			if !slices.ContainsFunc(step.BranchConfig, func(b BranchCase) bool { return b.Name == name }) {
				return definitionErrorf("branch step %d targets unknown branch %q", step.StepIndex, name)
			}
		}

		return a.validateTarget(step, step.DefaultTarget)

	default:
		return definitionErrorf("step %d has unknown type %q", step.StepIndex, step.Type)
	}
}

func (a *Automation) validateTarget(step *Step, target *int) error {
	if target == nil {
		return nil
	}

	if _, ok := a.StepAt(*target); !ok {
		return definitionErrorf("step %d references non-existent step %d", step.StepIndex, *target)
	}

	return nil
}

func validateConditions(where string, conditions []Condition) error {
	for i, condition := range conditions {
		if condition.Field == "" {
			return definitionErrorf("%s: condition %d has no field", where, i)
		}

		if !slices.Contains(KnownOperators, condition.Operator) {
			return definitionErrorf("%s: condition %d has unknown operator %q", where, i, condition.Operator)
		}

		if i > 0 && condition.Logic != LogicAnd && condition.Logic != LogicOr {
			return definitionErrorf("%s: condition %d needs AND/OR logic", where, i)
		}
	}

	return nil
}

func definitionErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
