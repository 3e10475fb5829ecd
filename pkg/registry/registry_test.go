package registry_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	addtag "github.com/magnusmagz/crm-k-sub002/pkg/actions/add_tag"
	logaction "github.com/magnusmagz/crm-k-sub002/pkg/actions/log"
	updatefield "github.com/magnusmagz/crm-k-sub002/pkg/actions/update_field"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/registry"
)

func newTestRegistry() *registry.Registry {
	service := entities.NewMemoryService()

	r := registry.NewRegistry(slog.Default())
	r.RegisterAction(addtag.NewAddTagActionFactory(service))
	r.RegisterAction(updatefield.NewUpdateFieldActionFactory(service))
	r.RegisterAction(logaction.NewLogActionFactory())

	return r
}

func TestRegistryCreateAction(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	action, err := r.CreateAction("add_tag", map[string]any{"tag": "vip"})
	require.NoError(t, err)
	assert.NotNil(t, action)

	_, err = r.CreateAction("launch_rocket", map[string]any{})
	assert.ErrorContains(t, err, "launch_rocket")
}

func TestRegistryValidateActionConfig(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	tests := []struct {
		name       string
		actionType string
		config     map[string]any
		wantErr    bool
	}{
		{"valid add_tag", "add_tag", map[string]any{"tag": "vip"}, false},
		{"add_tag missing tag", "add_tag", map[string]any{}, true},
		{"add_tag wrong type", "add_tag", map[string]any{"tag": 42}, true},
		{"valid update_field", "update_field", map[string]any{"field": "status", "value": "active"}, false},
		{"update_field missing field", "update_field", map[string]any{"value": "x"}, true},
		{"log with bad level", "log", map[string]any{"message": "hi", "level": "verbose"}, true},
		{"unregistered type", "send_fax", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := r.ValidateActionConfig(tt.actionType, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistryInventory(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	assert.True(t, r.IsActionRegistered("log"))
	assert.False(t, r.IsActionRegistered("nope"))
	assert.Equal(t, []string{"add_tag", "log", "update_field"}, r.AvailableActionTypes())
}
