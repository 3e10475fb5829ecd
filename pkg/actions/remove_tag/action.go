// Package removetag removes a tag from the enrolled entity's tag list.
package removetag

import (
	"context"
	"fmt"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
)

func NewRemoveTagActionFactory(service entities.Service) *RemoveTagActionFactory {
	return &RemoveTagActionFactory{service: service}
}

type RemoveTagActionFactory struct {
	service entities.Service
}

func (f *RemoveTagActionFactory) ID() string {
	return "remove_tag"
}

func (f *RemoveTagActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tag": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Tag to remove. Removing an absent tag is a no-op.",
			},
		},
		"required": []string{"tag"},
	}
}

func (f *RemoveTagActionFactory) Create(config map[string]any) (actions.Action, error) {
	tag, _ := config["tag"].(string)
	if tag == "" {
		return nil, fmt.Errorf("remove_tag requires a tag")
	}

	return &RemoveTagAction{service: f.service, Tag: tag}, nil
}

type RemoveTagAction struct {
	service entities.Service

	Tag string
}

func (a *RemoveTagAction) Execute(ctx context.Context, actx actions.Context) (map[string]any, error) {
	err := a.service.RemoveTag(ctx, actx.EntityType, actx.EntityID, a.Tag)
	if err != nil {
		return nil, fmt.Errorf("failed to remove tag '%s': %w", a.Tag, err)
	}

	actx.Logger.Info("Removed tag", "tag", a.Tag)

	return map[string]any{"tag": a.Tag}, nil
}
