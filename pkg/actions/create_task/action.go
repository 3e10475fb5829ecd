// Package createtask records a follow-up task against the enrolled entity.
package createtask

import (
	"context"
	"fmt"
	"time"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
	"github.com/magnusmagz/crm-k-sub002/pkg/entities"
)

func NewCreateTaskActionFactory(service entities.Service) *CreateTaskActionFactory {
	return &CreateTaskActionFactory{service: service}
}

type CreateTaskActionFactory struct {
	service entities.Service
}

func (f *CreateTaskActionFactory) ID() string {
	return "create_task"
}

func (f *CreateTaskActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Task title.",
			},
			"due_in_days": map[string]any{
				"type":        "number",
				"minimum":     0,
				"description": "Days from execution until the task is due. Omit for no due date.",
			},
		},
		"required": []string{"title"},
	}
}

func (f *CreateTaskActionFactory) Create(config map[string]any) (actions.Action, error) {
	title, _ := config["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("create_task requires a title")
	}

	action := &CreateTaskAction{service: f.service, Title: title}

	if days, ok := config["due_in_days"].(float64); ok {
		action.DueIn = time.Duration(days * float64(24*time.Hour))
		action.HasDue = true
	}

	return action, nil
}

type CreateTaskAction struct {
	service entities.Service

	Title  string
	DueIn  time.Duration
	HasDue bool
}

func (a *CreateTaskAction) Execute(ctx context.Context, actx actions.Context) (map[string]any, error) {
	task := &entities.Task{
		EntityType: actx.EntityType,
		EntityID:   actx.EntityID,
		Title:      a.Title,
	}

	if a.HasDue {
		dueAt := time.Now().UTC().Add(a.DueIn)
		task.DueAt = &dueAt
	}

	if err := a.service.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	actx.Logger.Info("Created task", "task_id", task.ID, "title", a.Title)

	result := map[string]any{"task_id": task.ID, "title": a.Title}
	if task.DueAt != nil {
		result["due_at"] = task.DueAt.Format(time.RFC3339)
	}

	return result, nil
}
