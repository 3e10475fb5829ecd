package createtask_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
	createtask "github.com/magnusmagz/crm-k-sub002/pkg/actions/create_task"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

func TestCreateTaskAction(t *testing.T) {
	t.Parallel()

	service := entities.NewMemoryService()
	factory := createtask.NewCreateTaskActionFactory(service)

	_, err := factory.Create(map[string]any{"due_in_days": 2.0})
	require.Error(t, err)

	action, err := factory.Create(map[string]any{"title": "Call back", "due_in_days": 2.0})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), actions.Context{
		EntityType: models.EntityTypeDeal,
		EntityID:   "d-1",
		Logger:     slog.Default(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result["task_id"])
	assert.Equal(t, "Call back", result["title"])

	tasks := service.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, models.EntityTypeDeal, tasks[0].EntityType)
	assert.Equal(t, "d-1", tasks[0].EntityID)

	require.NotNil(t, tasks[0].DueAt)
	assert.WithinDuration(t, time.Now().UTC().Add(48*time.Hour), *tasks[0].DueAt, time.Minute)
}

func TestCreateTaskActionWithoutDueDate(t *testing.T) {
	t.Parallel()

	service := entities.NewMemoryService()
	factory := createtask.NewCreateTaskActionFactory(service)

	action, err := factory.Create(map[string]any{"title": "Review notes"})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), actions.Context{
		EntityType: models.EntityTypeContact,
		EntityID:   "c-1",
		Logger:     slog.Default(),
	})
	require.NoError(t, err)
	assert.NotContains(t, result, "due_at")

	tasks := service.Tasks()
	require.Len(t, tasks, 1)
	assert.Nil(t, tasks[0].DueAt)
}
