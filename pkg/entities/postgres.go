package entities

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
)

// PostgresService stores entity attributes as one JSONB document per row.
// It shares the engine's database; the CRUD layer may point it at its own
// tables instead by implementing Service directly.
type PostgresService struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresService(db *sql.DB, logger *slog.Logger) *PostgresService {
	return &PostgresService{db: db, logger: logger.With("component", "entities_postgres")}
}

func (s *PostgresService) Snapshot(ctx context.Context, entityType models.EntityType, entityID string) (map[string]any, error) {
	var attributesJSON []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT attributes FROM crm_entities WHERE entity_type = $1 AND id = $2 AND deleted_at IS NULL`,
		string(entityType), entityID,
	).Scan(&attributesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", ErrEntityNotFound, entityType, entityID)
		}

		return nil, fmt.Errorf("failed to query entity: %w", err)
	}

	attributes := make(map[string]any)

	err = json.Unmarshal(attributesJSON, &attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity attributes: %w", err)
	}

	return attributes, nil
}

func (s *PostgresService) Exists(ctx context.Context, entityType models.EntityType, entityID string) (bool, error) {
	var exists bool

	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM crm_entities WHERE entity_type = $1 AND id = $2 AND deleted_at IS NULL)`,
		string(entityType), entityID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check entity existence: %w", err)
	}

	return exists, nil
}

// Save upserts an entity's full attribute document. Used by the CRUD
// layer and by tests; the engine itself only mutates single fields.
func (s *PostgresService) Save(ctx context.Context, entityType models.EntityType, entityID string, attributes map[string]any) error {
	attributesJSON, err := json.Marshal(attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal entity attributes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crm_entities (entity_type, id, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (entity_type, id) DO UPDATE SET
			attributes = EXCLUDED.attributes,
			updated_at = NOW(),
			deleted_at = NULL
	`, string(entityType), entityID, attributesJSON)
	if err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}

	return nil
}

func (s *PostgresService) UpdateField(ctx context.Context, entityType models.EntityType, entityID, field string, value any) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal field value: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE crm_entities
		SET attributes = jsonb_set(attributes, ARRAY[$3], $4::jsonb, true), updated_at = NOW()
		WHERE entity_type = $1 AND id = $2 AND deleted_at IS NULL
	`, string(entityType), entityID, field, valueJSON)
	if err != nil {
		return fmt.Errorf("failed to update entity field: %w", err)
	}

	return s.requireRow(result, entityType, entityID)
}

func (s *PostgresService) AddTag(ctx context.Context, entityType models.EntityType, entityID, tag string) error {
	tagJSON, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("failed to marshal tag: %w", err)
	}

	// Append only when absent so re-applied actions stay idempotent.
	result, err := s.db.ExecContext(ctx, `
		UPDATE crm_entities
		SET attributes = jsonb_set(
				attributes,
				'{tags}',
				COALESCE(attributes->'tags', '[]'::jsonb) || $3::jsonb,
				true
			),
			updated_at = NOW()
		WHERE entity_type = $1 AND id = $2 AND deleted_at IS NULL
		  AND NOT COALESCE(attributes->'tags', '[]'::jsonb) @> $4::jsonb
	`, string(entityType), entityID, "["+string(tagJSON)+"]", "["+string(tagJSON)+"]")
	if err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rows == 0 {
		// Either the tag was already present or the entity is gone;
		// distinguish so missing entities still surface.
		exists, err := s.Exists(ctx, entityType, entityID)
		if err != nil {
			return err
		}

		if !exists {
			return fmt.Errorf("%w: %s %s", ErrEntityNotFound, entityType, entityID)
		}
	}

	return nil
}

func (s *PostgresService) RemoveTag(ctx context.Context, entityType models.EntityType, entityID, tag string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE crm_entities
		SET attributes = jsonb_set(
				attributes,
				'{tags}',
				COALESCE(attributes->'tags', '[]'::jsonb) - $3,
				true
			),
			updated_at = NOW()
		WHERE entity_type = $1 AND id = $2 AND deleted_at IS NULL
	`, string(entityType), entityID, tag)
	if err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}

	return s.requireRow(result, entityType, entityID)
}

func (s *PostgresService) CreateTask(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_tasks (id, entity_type, entity_id, title, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, task.ID, string(task.EntityType), task.EntityID, task.Title, task.DueAt, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

func (s *PostgresService) requireRow(result sql.Result, entityType models.EntityType, entityID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s %s", ErrEntityNotFound, entityType, entityID)
	}

	return nil
}
