// Package logaction writes a structured log line for the enrolled
// entity. Useful as a no-op step while building out an automation.
package logaction

import (
	"context"
	"log/slog"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
)

func NewLogActionFactory() *LogActionFactory {
	return &LogActionFactory{}
}

type LogActionFactory struct{}

func (f *LogActionFactory) ID() string {
	return "log"
}

func (f *LogActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log.",
			},
			"level": map[string]any{
				"type":        "string",
				"enum":        []string{"debug", "info", "warn", "error"},
				"description": "Log level. Defaults to info.",
			},
		},
	}
}

func (f *LogActionFactory) Create(config map[string]any) (actions.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	message, _ := config["message"].(string)
	if message == "" {
		message = "Automation log step"
	}

	level, _ := config["level"].(string)

	return &LogAction{Message: message, Level: level}, nil
}

type LogAction struct {
	Message string
	Level   string
}

func (a *LogAction) Execute(ctx context.Context, actx actions.Context) (map[string]any, error) {
	logger := actx.Logger.With(
		"action_type", "log",
		"entity_type", actx.EntityType,
		"entity_id", actx.EntityID,
	)

	switch a.Level {
	case "debug":
		logger.Debug(a.Message)
	case "warn":
		logger.Warn(a.Message)
	case "error":
		logger.Log(ctx, slog.LevelError, a.Message)
	default:
		logger.Info(a.Message)
	}

	return map[string]any{"message": a.Message}, nil
}
