// Package addtag appends a tag to the enrolled entity's tag list.
package addtag

import (
	"context"
	"fmt"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
)

func NewAddTagActionFactory(service entities.Service) *AddTagActionFactory {
	return &AddTagActionFactory{service: service}
}

type AddTagActionFactory struct {
	service entities.Service
}

func (f *AddTagActionFactory) ID() string {
	return "add_tag"
}

func (f *AddTagActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tag": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Tag to add. Re-adding an existing tag is a no-op.",
			},
		},
		"required": []string{"tag"},
	}
}

func (f *AddTagActionFactory) Create(config map[string]any) (actions.Action, error) {
	tag, _ := config["tag"].(string)
	if tag == "" {
		return nil, fmt.Errorf("add_tag requires a tag")
	}

	return &AddTagAction{service: f.service, Tag: tag}, nil
}

type AddTagAction struct {
	service entities.Service

	Tag string
}

func (a *AddTagAction) Execute(ctx context.Context, actx actions.Context) (map[string]any, error) {
	err := a.service.AddTag(ctx, actx.EntityType, actx.EntityID, a.Tag)
	if err != nil {
		return nil, fmt.Errorf("failed to add tag '%s': %w", a.Tag, err)
	}

	actx.Logger.Info("Added tag", "tag", a.Tag)

	return map[string]any{"tag": a.Tag}, nil
}
