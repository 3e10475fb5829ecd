// Package postgresql provides the PostgreSQL persistence implementation
// for automations, enrollments and the execution log.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	automationRepo *AutomationRepository
	enrollmentRepo *EnrollmentRepository
	executionRepo  *ExecutionLogRepository
}

// NewPersistence opens the database, runs migrations and wires the
// repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		automationRepo: NewAutomationRepository(database, logger),
		enrollmentRepo: NewEnrollmentRepository(database, logger),
		executionRepo:  NewExecutionLogRepository(database, logger),
	}, nil
}

// DB exposes the underlying connection for collaborators that share the
// database, such as the bundled Postgres entity service.
func (p *Persistence) DB() *sql.DB {
	return p.db
}

func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Automations(ctx context.Context) ([]*models.Automation, error) {
	return p.automationRepo.GetAll(ctx)
}

func (p *Persistence) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	return p.automationRepo.GetByID(ctx, id)
}

func (p *Persistence) ActiveAutomationsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Automation, error) {
	return p.automationRepo.GetActiveByTrigger(ctx, triggerType)
}

func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	return p.automationRepo.Save(ctx, automation)
}

func (p *Persistence) DeleteAutomation(ctx context.Context, id string) error {
	return p.automationRepo.Delete(ctx, id)
}

func (p *Persistence) RecordExecution(ctx context.Context, automationID string, success bool, at time.Time) error {
	return p.automationRepo.RecordExecution(ctx, automationID, success, at)
}

func (p *Persistence) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	return p.enrollmentRepo.Create(ctx, enrollment)
}

func (p *Persistence) EnrollmentByID(ctx context.Context, id string) (*models.Enrollment, error) {
	return p.enrollmentRepo.GetByID(ctx, id)
}

func (p *Persistence) ActiveEnrollment(ctx context.Context, automationID string, entityType models.EntityType, entityID string) (*models.Enrollment, error) {
	return p.enrollmentRepo.GetActive(ctx, automationID, entityType, entityID)
}

func (p *Persistence) EnrollmentsByAutomation(ctx context.Context, automationID string) ([]*models.Enrollment, error) {
	return p.enrollmentRepo.GetByAutomation(ctx, automationID)
}

func (p *Persistence) EnrollmentsByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Enrollment, error) {
	return p.enrollmentRepo.GetByEntity(ctx, entityType, entityID)
}

func (p *Persistence) UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	return p.enrollmentRepo.Update(ctx, enrollment)
}

func (p *Persistence) ClaimDueEnrollments(ctx context.Context, now time.Time, limit int, workerID string, claimTTL time.Duration) ([]*models.Enrollment, error) {
	return p.enrollmentRepo.ClaimDue(ctx, now, limit, workerID, claimTTL)
}

func (p *Persistence) ReleaseClaim(ctx context.Context, enrollmentID, workerID string) error {
	return p.enrollmentRepo.ReleaseClaim(ctx, enrollmentID, workerID)
}

func (p *Persistence) AppendExecution(ctx context.Context, entry *models.ExecutionLogEntry) error {
	return p.executionRepo.Append(ctx, entry)
}

func (p *Persistence) ExecutionsByAutomation(ctx context.Context, automationID string, limit int) ([]*models.ExecutionLogEntry, error) {
	return p.executionRepo.GetByAutomation(ctx, automationID, limit)
}

func (p *Persistence) ExecutionsByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ExecutionLogEntry, error) {
	return p.executionRepo.GetByEnrollment(ctx, enrollmentID)
}

func (p *Persistence) ExecutionsByEntity(ctx context.Context, entityType models.EntityType, entityID string, limit int) ([]*models.ExecutionLogEntry, error) {
	return p.executionRepo.GetByEntity(ctx, entityType, entityID, limit)
}
