// Package updatefield sets a single field on the enrolled entity.
package updatefield

import (
	"context"
	"fmt"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
)

func NewUpdateFieldActionFactory(service entities.Service) *UpdateFieldActionFactory {
	return &UpdateFieldActionFactory{service: service}
}

type UpdateFieldActionFactory struct {
	service entities.Service
}

func (f *UpdateFieldActionFactory) ID() string {
	return "update_field"
}

func (f *UpdateFieldActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Field name to set. Dotted paths address nested fields.",
			},
			"value": map[string]any{
				"description": "New value for the field. Any JSON value is accepted.",
			},
		},
		"required": []string{"field"},
	}
}

func (f *UpdateFieldActionFactory) Create(config map[string]any) (actions.Action, error) {
	field, _ := config["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("update_field requires a field name")
	}

	return &UpdateFieldAction{
		service: f.service,
		Field:   field,
		Value:   config["value"],
	}, nil
}

type UpdateFieldAction struct {
	service entities.Service

	Field string
	Value any
}

func (a *UpdateFieldAction) Execute(ctx context.Context, actx actions.Context) (map[string]any, error) {
	logger := actx.Logger.With("action_type", "update_field", "field", a.Field)

	err := a.service.UpdateField(ctx, actx.EntityType, actx.EntityID, a.Field, a.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to update field '%s': %w", a.Field, err)
	}

	logger.Info("Updated entity field")

	return map[string]any{"field": a.Field, "value": a.Value}, nil
}
