// Package changedealstage moves a deal to another pipeline stage.
package changedealstage

import (
	"context"
	"fmt"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

func NewChangeDealStageActionFactory(service entities.Service) *ChangeDealStageActionFactory {
	return &ChangeDealStageActionFactory{service: service}
}

type ChangeDealStageActionFactory struct {
	service entities.Service
}

func (f *ChangeDealStageActionFactory) ID() string {
	return "change_deal_stage"
}

func (f *ChangeDealStageActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"stage": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Target pipeline stage.",
			},
		},
		"required": []string{"stage"},
	}
}

func (f *ChangeDealStageActionFactory) Create(config map[string]any) (actions.Action, error) {
	stage, _ := config["stage"].(string)
	if stage == "" {
		return nil, fmt.Errorf("change_deal_stage requires a stage")
	}

	return &ChangeDealStageAction{service: f.service, Stage: stage}, nil
}

type ChangeDealStageAction struct {
	service entities.Service

	Stage string
}

func (a *ChangeDealStageAction) Execute(ctx context.Context, actx actions.Context) (map[string]any, error) {
	if actx.EntityType != models.EntityTypeDeal {
		return nil, fmt.Errorf("change_deal_stage applies to deals, got entity type '%s'", actx.EntityType)
	}

	fromStage, _ := actx.Snapshot["stage"].(string)

	err := a.service.UpdateField(ctx, actx.EntityType, actx.EntityID, "stage", a.Stage)
	if err != nil {
		return nil, fmt.Errorf("failed to change deal stage: %w", err)
	}

	actx.Logger.Info("Changed deal stage", "from_stage", fromStage, "to_stage", a.Stage)

	return map[string]any{"from_stage": fromStage, "to_stage": a.Stage}, nil
}
