// Package memory provides an in-memory persistence implementation for
// tests and single-process development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
)

type Persistence struct {
	mu          sync.RWMutex
	automations map[string]*models.Automation
	enrollments map[string]*models.Enrollment
	executions  []*models.ExecutionLogEntry
}

func NewPersistence() *Persistence {
	return &Persistence{
		automations: make(map[string]*models.Automation),
		enrollments: make(map[string]*models.Enrollment),
	}
}

func (p *Persistence) Automations(ctx context.Context) ([]*models.Automation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	automations := make([]*models.Automation, 0, len(p.automations))

	for _, automation := range p.automations {
		if automation.DeletedAt == nil {
			automations = append(automations, copyAutomation(automation))
		}
	}

	sort.Slice(automations, func(i, j int) bool {
		return automations[i].CreatedAt.Before(automations[j].CreatedAt)
	})

	return automations, nil
}

func (p *Persistence) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	automation, ok := p.automations[id]
	if !ok || automation.DeletedAt != nil {
		return nil, fmt.Errorf("automation %s: %w", id, persistence.ErrNotFound)
	}

	return copyAutomation(automation), nil
}

func (p *Persistence) ActiveAutomationsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Automation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var matched []*models.Automation

	for _, automation := range p.automations {
		if automation.DeletedAt == nil && automation.IsActive && automation.Trigger.Type == triggerType {
			matched = append(matched, copyAutomation(automation))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()

	if automation.ID == "" {
		automation.ID = uuid.New().String()
	}

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now
	p.automations[automation.ID] = copyAutomation(automation)

	return nil
}

func (p *Persistence) DeleteAutomation(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	automation, ok := p.automations[id]
	if !ok || automation.DeletedAt != nil {
		return fmt.Errorf("automation %s: %w", id, persistence.ErrNotFound)
	}

	now := time.Now().UTC()
	automation.DeletedAt = &now

	return nil
}

func (p *Persistence) RecordExecution(ctx context.Context, automationID string, success bool, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	automation, ok := p.automations[automationID]
	if !ok {
		return fmt.Errorf("automation %s: %w", automationID, persistence.ErrNotFound)
	}

	automation.TotalExecutions++
	if success {
		automation.SuccessfulExecutions++
	}

	automation.LastExecutedAt = &at

	return nil
}

func (p *Persistence) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.enrollments {
		if existing.AutomationID == enrollment.AutomationID &&
			existing.EntityType == enrollment.EntityType &&
			existing.EntityID == enrollment.EntityID &&
			existing.Status == models.EnrollmentStatusActive {
			return persistence.ErrDuplicateEnrollment
		}
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.New().String()
	}

	now := time.Now().UTC()

	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}

	enrollment.UpdatedAt = now
	p.enrollments[enrollment.ID] = copyEnrollment(enrollment)

	return nil
}

func (p *Persistence) EnrollmentByID(ctx context.Context, id string) (*models.Enrollment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	enrollment, ok := p.enrollments[id]
	if !ok {
		return nil, fmt.Errorf("enrollment %s: %w", id, persistence.ErrNotFound)
	}

	return copyEnrollment(enrollment), nil
}

func (p *Persistence) ActiveEnrollment(ctx context.Context, automationID string, entityType models.EntityType, entityID string) (*models.Enrollment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, enrollment := range p.enrollments {
		if enrollment.AutomationID == automationID &&
			enrollment.EntityType == entityType &&
			enrollment.EntityID == entityID &&
			enrollment.Status == models.EnrollmentStatusActive {
			return copyEnrollment(enrollment), nil
		}
	}

	return nil, nil
}

func (p *Persistence) EnrollmentsByAutomation(ctx context.Context, automationID string) ([]*models.Enrollment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var matched []*models.Enrollment

	for _, enrollment := range p.enrollments {
		if enrollment.AutomationID == automationID {
			matched = append(matched, copyEnrollment(enrollment))
		}
	}

	sortEnrollments(matched)

	return matched, nil
}

func (p *Persistence) EnrollmentsByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Enrollment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var matched []*models.Enrollment

	for _, enrollment := range p.enrollments {
		if enrollment.EntityType == entityType && enrollment.EntityID == entityID {
			matched = append(matched, copyEnrollment(enrollment))
		}
	}

	sortEnrollments(matched)

	return matched, nil
}

func (p *Persistence) UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, ok := p.enrollments[enrollment.ID]
	if !ok {
		return fmt.Errorf("enrollment %s: %w", enrollment.ID, persistence.ErrNotFound)
	}

	if stored.IsTerminal() {
		return fmt.Errorf("enrollment %s: %w", enrollment.ID, persistence.ErrTerminalEnrollment)
	}

	enrollment.UpdatedAt = time.Now().UTC()
	p.enrollments[enrollment.ID] = copyEnrollment(enrollment)

	return nil
}

func (p *Persistence) ClaimDueEnrollments(ctx context.Context, now time.Time, limit int, workerID string, claimTTL time.Duration) ([]*models.Enrollment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var due []*models.Enrollment

	for _, enrollment := range p.enrollments {
		if enrollment.Status != models.EnrollmentStatusActive {
			continue
		}

		if enrollment.NextDueAt == nil || enrollment.NextDueAt.After(now) {
			continue
		}

		if enrollment.ClaimedAt != nil && now.Sub(*enrollment.ClaimedAt) < claimTTL {
			continue
		}

		due = append(due, enrollment)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(*due[j].NextDueAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*models.Enrollment, 0, len(due))

	for _, enrollment := range due {
		claimedAt := now
		enrollment.ClaimedBy = workerID
		enrollment.ClaimedAt = &claimedAt
		claimed = append(claimed, copyEnrollment(enrollment))
	}

	return claimed, nil
}

func (p *Persistence) ReleaseClaim(ctx context.Context, enrollmentID, workerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	enrollment, ok := p.enrollments[enrollmentID]
	if !ok {
		return fmt.Errorf("enrollment %s: %w", enrollmentID, persistence.ErrNotFound)
	}

	if enrollment.ClaimedBy != workerID {
		return nil
	}

	enrollment.ClaimedBy = ""
	enrollment.ClaimedAt = nil

	return nil
}

func (p *Persistence) AppendExecution(ctx context.Context, entry *models.ExecutionLogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	copied := *entry
	p.executions = append(p.executions, &copied)

	return nil
}

func (p *Persistence) ExecutionsByAutomation(ctx context.Context, automationID string, limit int) ([]*models.ExecutionLogEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.filterExecutions(limit, func(entry *models.ExecutionLogEntry) bool {
		return entry.AutomationID == automationID
	}), nil
}

func (p *Persistence) ExecutionsByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ExecutionLogEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.filterExecutions(0, func(entry *models.ExecutionLogEntry) bool {
		return entry.EnrollmentID == enrollmentID
	}), nil
}

func (p *Persistence) ExecutionsByEntity(ctx context.Context, entityType models.EntityType, entityID string, limit int) ([]*models.ExecutionLogEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.filterExecutions(limit, func(entry *models.ExecutionLogEntry) bool {
		return entry.EntityType == entityType && entry.EntityID == entityID
	}), nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	return nil
}

// filterExecutions returns newest-first entries matching the predicate.
// Callers must hold at least the read lock.
func (p *Persistence) filterExecutions(limit int, match func(*models.ExecutionLogEntry) bool) []*models.ExecutionLogEntry {
	matched := make([]*models.ExecutionLogEntry, 0)

	for i := len(p.executions) - 1; i >= 0; i-- {
		if match(p.executions[i]) {
			copied := *p.executions[i]
			matched = append(matched, &copied)

			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}

	return matched
}

func sortEnrollments(enrollments []*models.Enrollment) {
	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.Before(enrollments[j].EnrolledAt)
	})
}

func copyAutomation(automation *models.Automation) *models.Automation {
	copied := *automation

	copied.Steps = append([]models.Step(nil), automation.Steps...)
	copied.ExitCriteria = append([]models.Condition(nil), automation.ExitCriteria...)

	return &copied
}

func copyEnrollment(enrollment *models.Enrollment) *models.Enrollment {
	copied := *enrollment

	if enrollment.NextDueAt != nil {
		t := *enrollment.NextDueAt
		copied.NextDueAt = &t
	}

	if enrollment.DelayArmedAt != nil {
		t := *enrollment.DelayArmedAt
		copied.DelayArmedAt = &t
	}

	if enrollment.ClaimedAt != nil {
		t := *enrollment.ClaimedAt
		copied.ClaimedAt = &t
	}

	return &copied
}
