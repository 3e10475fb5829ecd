package addtag_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
	addtag "github.com/magnusmagz/crm-k-sub002/pkg/actions/add_tag"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

func TestAddTagAction(t *testing.T) {
	t.Parallel()

	service := entities.NewMemoryService()
	service.Put(models.EntityTypeContact, "c-1", map[string]any{"email": "ana@example.com"})

	factory := addtag.NewAddTagActionFactory(service)

	_, err := factory.Create(map[string]any{})
	require.Error(t, err)

	action, err := factory.Create(map[string]any{"tag": "vip"})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), actions.Context{
		EntityType: models.EntityTypeContact,
		EntityID:   "c-1",
		Logger:     slog.Default(),
	})
	require.NoError(t, err)
	assert.Equal(t, "vip", result["tag"])

	snapshot, err := service.Snapshot(context.Background(), models.EntityTypeContact, "c-1")
	require.NoError(t, err)
	assert.Contains(t, snapshot["tags"], "vip")

	// adding the same tag twice stays idempotent
	_, err = action.Execute(context.Background(), actions.Context{
		EntityType: models.EntityTypeContact,
		EntityID:   "c-1",
		Logger:     slog.Default(),
	})
	require.NoError(t, err)
}
