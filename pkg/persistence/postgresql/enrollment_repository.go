package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
)

const uniqueViolation = "23505"

// EnrollmentRepository handles enrollment database operations, including
// the worker claim protocol.
type EnrollmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEnrollmentRepository(db *sql.DB, logger *slog.Logger) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, logger: logger}
}

const enrollmentColumns = `
	id, automation_id, entity_type, entity_id, current_step_index, status,
	exit_reason, enrolled_at, next_due_at, delay_armed_at, claimed_by,
	claimed_at, updated_at
`

// Create inserts a new enrollment. The partial unique index on active
// enrollments turns a duplicate into ErrDuplicateEnrollment, so the
// at-most-one-active invariant holds even under concurrent triggers.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	now := time.Now().UTC()

	if enrollment.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate enrollment ID: %w", err)
		}

		enrollment.ID = id.String()
	}

	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}

	enrollment.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		enrollment.ID,
		enrollment.AutomationID,
		string(enrollment.EntityType),
		enrollment.EntityID,
		enrollment.CurrentStepIndex,
		string(enrollment.Status),
		enrollment.ExitReason,
		enrollment.EnrolledAt,
		enrollment.NextDueAt,
		enrollment.DelayArmedAt,
		enrollment.ClaimedBy,
		enrollment.ClaimedAt,
		enrollment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return persistence.ErrDuplicateEnrollment
		}

		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	return nil
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT` + enrollmentColumns + `FROM automation_enrollments WHERE id = $1`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("enrollment %s: %w", id, persistence.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	return enrollment, nil
}

func (r *EnrollmentRepository) GetActive(ctx context.Context, automationID string, entityType models.EntityType, entityID string) (*models.Enrollment, error) {
	query := `SELECT` + enrollmentColumns + `
		FROM automation_enrollments
		WHERE automation_id = $1 AND entity_type = $2 AND entity_id = $3 AND status = 'active'`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, automationID, string(entityType), entityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	return enrollment, nil
}

func (r *EnrollmentRepository) GetByAutomation(ctx context.Context, automationID string) ([]*models.Enrollment, error) {
	query := `SELECT` + enrollmentColumns + `
		FROM automation_enrollments
		WHERE automation_id = $1
		ORDER BY enrolled_at ASC`

	return r.queryEnrollments(ctx, query, automationID)
}

func (r *EnrollmentRepository) GetByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Enrollment, error) {
	query := `SELECT` + enrollmentColumns + `
		FROM automation_enrollments
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY enrolled_at ASC`

	return r.queryEnrollments(ctx, query, string(entityType), entityID)
}

// Update commits a state transition. Terminal rows are never overwritten;
// a stale worker updating a finished enrollment gets ErrTerminalEnrollment.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE automation_enrollments
		SET current_step_index = $2,
			status = $3,
			exit_reason = $4,
			next_due_at = $5,
			delay_armed_at = $6,
			claimed_by = $7,
			claimed_at = $8,
			updated_at = $9
		WHERE id = $1 AND status = 'active'
	`,
		enrollment.ID,
		enrollment.CurrentStepIndex,
		string(enrollment.Status),
		enrollment.ExitReason,
		enrollment.NextDueAt,
		enrollment.DelayArmedAt,
		enrollment.ClaimedBy,
		enrollment.ClaimedAt,
		enrollment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rows == 0 {
		_, err := r.GetByID(ctx, enrollment.ID)
		if err != nil {
			return err
		}

		return fmt.Errorf("enrollment %s: %w", enrollment.ID, persistence.ErrTerminalEnrollment)
	}

	return nil
}

// ClaimDue atomically claims up to limit due active enrollments for
// workerID. SKIP LOCKED keeps concurrent pollers from blocking on each
// other; the claimed_at window makes crashed workers' claims expire.
func (r *EnrollmentRepository) ClaimDue(ctx context.Context, now time.Time, limit int, workerID string, claimTTL time.Duration) ([]*models.Enrollment, error) {
	staleBefore := now.Add(-claimTTL)

	query := `
		UPDATE automation_enrollments
		SET claimed_by = $1, claimed_at = $2
		WHERE id IN (
			SELECT id
			FROM automation_enrollments
			WHERE status = 'active'
			  AND next_due_at IS NOT NULL
			  AND next_due_at <= $2
			  AND (claimed_at IS NULL OR claimed_at < $3)
			ORDER BY next_due_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING` + enrollmentColumns

	rows, err := r.db.QueryContext(ctx, query, workerID, now, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due enrollments: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	claimed := make([]*models.Enrollment, 0)

	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed enrollment: %w", err)
		}

		claimed = append(claimed, enrollment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating claimed enrollments: %w", err)
	}

	return claimed, nil
}

func (r *EnrollmentRepository) ReleaseClaim(ctx context.Context, enrollmentID, workerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE automation_enrollments
		SET claimed_by = '', claimed_at = NULL
		WHERE id = $1 AND claimed_by = $2
	`, enrollmentID, workerID)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}

	return nil
}

func (r *EnrollmentRepository) queryEnrollments(ctx context.Context, query string, args ...any) ([]*models.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	enrollments := make([]*models.Enrollment, 0)

	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}

		enrollments = append(enrollments, enrollment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}

	return enrollments, nil
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		enrollment models.Enrollment
		entityType string
		status     string
	)

	err := row.Scan(
		&enrollment.ID,
		&enrollment.AutomationID,
		&entityType,
		&enrollment.EntityID,
		&enrollment.CurrentStepIndex,
		&status,
		&enrollment.ExitReason,
		&enrollment.EnrolledAt,
		&enrollment.NextDueAt,
		&enrollment.DelayArmedAt,
		&enrollment.ClaimedBy,
		&enrollment.ClaimedAt,
		&enrollment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	enrollment.EntityType = models.EntityType(entityType)
	enrollment.Status = models.EnrollmentStatus(status)

	return &enrollment, nil
}
