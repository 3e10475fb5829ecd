package entities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

type entityKey struct {
	entityType models.EntityType
	entityID   string
}

// MemoryService is a mutex-guarded in-memory entity store for tests and
// single-process development.
type MemoryService struct {
	mu       sync.RWMutex
	entities map[entityKey]map[string]any
	tasks    []*Task
}

func NewMemoryService() *MemoryService {
	return &MemoryService{
		entities: make(map[entityKey]map[string]any),
	}
}

// Put stores or replaces an entity's attributes.
func (s *MemoryService) Put(entityType models.EntityType, entityID string, attributes map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]any, len(attributes))
	for k, v := range attributes {
		copied[k] = v
	}

	s.entities[entityKey{entityType, entityID}] = copied
}

// Delete removes an entity, simulating deletion by the CRUD layer.
func (s *MemoryService) Delete(entityType models.EntityType, entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entities, entityKey{entityType, entityID})
}

// Tasks returns all tasks created so far.
func (s *MemoryService) Tasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Task(nil), s.tasks...)
}

func (s *MemoryService) Snapshot(ctx context.Context, entityType models.EntityType, entityID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attributes, ok := s.entities[entityKey{entityType, entityID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrEntityNotFound, entityType, entityID)
	}

	copied := make(map[string]any, len(attributes))
	for k, v := range attributes {
		copied[k] = v
	}

	return copied, nil
}

func (s *MemoryService) Exists(ctx context.Context, entityType models.EntityType, entityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entities[entityKey{entityType, entityID}]

	return ok, nil
}

func (s *MemoryService) UpdateField(ctx context.Context, entityType models.EntityType, entityID, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attributes, ok := s.entities[entityKey{entityType, entityID}]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrEntityNotFound, entityType, entityID)
	}

	attributes[field] = value

	return nil
}

func (s *MemoryService) AddTag(ctx context.Context, entityType models.EntityType, entityID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attributes, ok := s.entities[entityKey{entityType, entityID}]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrEntityNotFound, entityType, entityID)
	}

	tags := toTags(attributes["tags"])
	for _, existing := range tags {
		if existing == tag {
			return nil
		}
	}

	attributes["tags"] = append(tags, tag)

	return nil
}

func (s *MemoryService) RemoveTag(ctx context.Context, entityType models.EntityType, entityID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attributes, ok := s.entities[entityKey{entityType, entityID}]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrEntityNotFound, entityType, entityID)
	}

	tags := toTags(attributes["tags"])
	kept := make([]string, 0, len(tags))

	for _, existing := range tags {
		if existing != tag {
			kept = append(kept, existing)
		}
	}

	attributes["tags"] = kept

	return nil
}

func (s *MemoryService) CreateTask(ctx context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	s.tasks = append(s.tasks, task)

	return nil
}

// toTags normalizes the tags attribute, which arrives as []string from Go
// callers and []any from JSON decoding.
func toTags(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}

		return tags
	default:
		return nil
	}
}
