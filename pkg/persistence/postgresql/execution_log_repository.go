package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

// ExecutionLogRepository appends and reads execution-log entries. The log
// is append-only; there is deliberately no update or delete path.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

const executionColumns = `
	id, automation_id, enrollment_id, entity_type, entity_id, step_index,
	action_type, outcome, detail, created_at
`

func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLogEntry) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution log ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var enrollmentID any
	if entry.EnrollmentID != "" {
		enrollmentID = entry.EnrollmentID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID,
		entry.AutomationID,
		enrollmentID,
		string(entry.EntityType),
		entry.EntityID,
		entry.StepIndex,
		entry.ActionType,
		string(entry.Outcome),
		entry.Detail,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution log entry: %w", err)
	}

	return nil
}

func (r *ExecutionLogRepository) GetByAutomation(ctx context.Context, automationID string, limit int) ([]*models.ExecutionLogEntry, error) {
	query := `SELECT` + executionColumns + `
		FROM automation_executions
		WHERE automation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	return r.queryExecutions(ctx, query, automationID, normalizeLimit(limit))
}

func (r *ExecutionLogRepository) GetByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ExecutionLogEntry, error) {
	query := `SELECT` + executionColumns + `
		FROM automation_executions
		WHERE enrollment_id = $1
		ORDER BY created_at DESC, id DESC`

	return r.queryExecutions(ctx, query, enrollmentID)
}

func (r *ExecutionLogRepository) GetByEntity(ctx context.Context, entityType models.EntityType, entityID string, limit int) ([]*models.ExecutionLogEntry, error) {
	query := `SELECT` + executionColumns + `
		FROM automation_executions
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	return r.queryExecutions(ctx, query, string(entityType), entityID, normalizeLimit(limit))
}

const defaultLogLimit = 100

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLogLimit
	}

	return limit
}

func (r *ExecutionLogRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.ExecutionLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution log: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	entries := make([]*models.ExecutionLogEntry, 0)

	for rows.Next() {
		entry, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log entry: %w", err)
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution log: %w", err)
	}

	return entries, nil
}

func scanExecution(row rowScanner) (*models.ExecutionLogEntry, error) {
	var (
		entry        models.ExecutionLogEntry
		enrollmentID sql.NullString
		entityType   string
		outcome      string
	)

	err := row.Scan(
		&entry.ID,
		&entry.AutomationID,
		&enrollmentID,
		&entityType,
		&entry.EntityID,
		&entry.StepIndex,
		&entry.ActionType,
		&outcome,
		&entry.Detail,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.EnrollmentID = enrollmentID.String
	entry.EntityType = models.EntityType(entityType)
	entry.Outcome = models.ExecutionOutcome(outcome)

	return &entry, nil
}
