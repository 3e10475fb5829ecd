// Package registry holds the catalog of executable action types and
// validates action configurations against their JSON schemas before an
// action instance is built.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
)

// ActionFactory builds a concrete action from its step configuration.
// Schema returns the JSON schema the configuration must satisfy.
type ActionFactory interface {
	ID() string
	Schema() map[string]any
	Create(config map[string]any) (actions.Action, error)
}

type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger,
		actionFactories: make(map[string]ActionFactory),
	}
}

func (r *Registry) RegisterAction(factory ActionFactory) {
	r.actionFactories[factory.ID()] = factory
}

// CreateAction validates config against the registered schema and returns
// a ready-to-execute action.
func (r *Registry) CreateAction(actionType string, config map[string]any) (actions.Action, error) {
	factory, ok := r.actionFactories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	if err := r.ValidateActionConfig(actionType, config); err != nil {
		return nil, err
	}

	return factory.Create(config)
}

// ValidateActionConfig checks config against the action type's schema
// without instantiating the action. The API uses this to reject invalid
// definitions at save time.
func (r *Registry) ValidateActionConfig(actionType string, config map[string]any) error {
	factory, ok := r.actionFactories[actionType]
	if !ok {
		return fmt.Errorf("action type '%s' not registered", actionType)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate action config: %w", err)
	}

	if !result.Valid() {
		errs := result.Errors()
		details := make([]string, 0, len(errs))
		for _, desc := range errs {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid config for action '%s': %v", actionType, details)
	}

	return nil
}

func (r *Registry) IsActionRegistered(actionType string) bool {
	_, ok := r.actionFactories[actionType]
	return ok
}

func (r *Registry) AvailableActionTypes() []string {
	types := make([]string, 0, len(r.actionFactories))
	for actionType := range r.actionFactories {
		types = append(types, actionType)
	}

	sort.Strings(types)

	return types
}
