package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
)

// AutomationRepository handles automation-definition database operations.
// Steps, trigger filter and exit criteria are stored as JSONB documents;
// the engine always loads a definition whole.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

const automationColumns = `
	id, name, description, trigger_type, trigger_filter, is_active,
	is_multi_step, steps, exit_criteria, max_duration_days,
	safety_exit_enabled, total_executions, successful_executions,
	last_executed_at, created_at, updated_at, deleted_at
`

func (r *AutomationRepository) GetAll(ctx context.Context) ([]*models.Automation, error) {
	query := `SELECT` + automationColumns + `
		FROM automations
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC`

	return r.queryAutomations(ctx, query)
}

func (r *AutomationRepository) GetActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Automation, error) {
	query := `SELECT` + automationColumns + `
		FROM automations
		WHERE deleted_at IS NULL AND is_active = true AND trigger_type = $1
		ORDER BY created_at ASC`

	return r.queryAutomations(ctx, query, string(triggerType))
}

func (r *AutomationRepository) GetByID(ctx context.Context, id string) (*models.Automation, error) {
	query := `SELECT` + automationColumns + `
		FROM automations
		WHERE id = $1 AND deleted_at IS NULL`

	automation, err := r.scanAutomation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("automation %s: %w", id, persistence.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	return automation, nil
}

func (r *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC()

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	if automation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation ID: %w", err)
		}

		automation.ID = id.String()
	}

	filterJSON, err := json.Marshal(automation.Trigger.Filter)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger filter: %w", err)
	}

	stepsJSON, err := json.Marshal(automation.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	exitCriteriaJSON, err := json.Marshal(automation.ExitCriteria)
	if err != nil {
		return fmt.Errorf("failed to marshal exit criteria: %w", err)
	}

	query := `
		INSERT INTO automations (
			id, name, description, trigger_type, trigger_filter, is_active,
			is_multi_step, steps, exit_criteria, max_duration_days,
			safety_exit_enabled, total_executions, successful_executions,
			last_executed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			trigger_filter = EXCLUDED.trigger_filter,
			is_active = EXCLUDED.is_active,
			is_multi_step = EXCLUDED.is_multi_step,
			steps = EXCLUDED.steps,
			exit_criteria = EXCLUDED.exit_criteria,
			max_duration_days = EXCLUDED.max_duration_days,
			safety_exit_enabled = EXCLUDED.safety_exit_enabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		automation.ID,
		automation.Name,
		automation.Description,
		string(automation.Trigger.Type),
		filterJSON,
		automation.IsActive,
		automation.IsMultiStep,
		stepsJSON,
		exitCriteriaJSON,
		automation.MaxDurationDays,
		automation.SafetyExitEnabled,
		automation.TotalExecutions,
		automation.SuccessfulExecutions,
		automation.LastExecutedAt,
		automation.CreatedAt,
		automation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	return nil
}

func (r *AutomationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE automations SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("automation %s: %w", id, persistence.ErrNotFound)
	}

	return nil
}

// RecordExecution bumps the execution counters in a single statement so
// concurrent workers never lose increments.
func (r *AutomationRepository) RecordExecution(ctx context.Context, automationID string, success bool, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE automations
		SET total_executions = total_executions + 1,
			successful_executions = successful_executions + CASE WHEN $2 THEN 1 ELSE 0 END,
			last_executed_at = $3
		WHERE id = $1
	`, automationID, success, at)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("automation %s: %w", automationID, persistence.ErrNotFound)
	}

	return nil
}

func (r *AutomationRepository) queryAutomations(ctx context.Context, query string, args ...any) ([]*models.Automation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		automation, err := r.scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AutomationRepository) scanAutomation(row rowScanner) (*models.Automation, error) {
	var (
		automation       models.Automation
		triggerType      string
		filterJSON       []byte
		stepsJSON        []byte
		exitCriteriaJSON []byte
	)

	err := row.Scan(
		&automation.ID,
		&automation.Name,
		&automation.Description,
		&triggerType,
		&filterJSON,
		&automation.IsActive,
		&automation.IsMultiStep,
		&stepsJSON,
		&exitCriteriaJSON,
		&automation.MaxDurationDays,
		&automation.SafetyExitEnabled,
		&automation.TotalExecutions,
		&automation.SuccessfulExecutions,
		&automation.LastExecutedAt,
		&automation.CreatedAt,
		&automation.UpdatedAt,
		&automation.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	automation.Trigger.Type = models.TriggerType(triggerType)

	err = json.Unmarshal(filterJSON, &automation.Trigger.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger filter: %w", err)
	}

	err = json.Unmarshal(stepsJSON, &automation.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	err = json.Unmarshal(exitCriteriaJSON, &automation.ExitCriteria)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal exit criteria: %w", err)
	}

	return &automation, nil
}
