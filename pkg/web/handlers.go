package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/magnusmagz/crm-k-sub002/pkg/engine"
	"github.com/magnusmagz/crm-k-sub002/pkg/events"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
	"github.com/magnusmagz/crm-k-sub002/pkg/registry"
)

const defaultExecutionLimit = 50

type APIHandlers struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    *engine.Executor
	matcher     *engine.Matcher
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	persist persistence.Persistence,
	executor *engine.Executor,
	matcher *engine.Matcher,
	reg *registry.Registry,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		logger:      logger.With("module", "api_handlers"),
		persistence: persist,
		executor:    executor,
		matcher:     matcher,
		registry:    reg,
		validator:   validate,
	}
}

func (h *APIHandlers) GetAutomations(c fiber.Ctx) error {
	automations, err := h.persistence.Automations(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(automations)
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	automation, errResp := h.fetchAutomation(c)
	if automation == nil {
		return errResp
	}

	return c.JSON(automation)
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	var req CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	automation := &models.Automation{
		Name:              req.Name,
		Description:       req.Description,
		Trigger:           req.Trigger,
		IsActive:          req.IsActive,
		IsMultiStep:       req.IsMultiStep,
		Steps:             req.Steps,
		ExitCriteria:      req.ExitCriteria,
		MaxDurationDays:   req.MaxDurationDays,
		SafetyExitEnabled: req.SafetyExitEnabled,
	}

	if err := h.validateDefinition(automation); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.SaveAutomation(c.Context(), automation); err != nil {
		return handlePersistenceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(automation)
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	var req UpdateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	automation, errResp := h.fetchAutomation(c)
	if automation == nil {
		return errResp
	}

	if req.Name != nil {
		automation.Name = *req.Name
	}

	if req.Description != nil {
		automation.Description = *req.Description
	}

	if req.Trigger != nil {
		automation.Trigger = *req.Trigger
	}

	if req.IsMultiStep != nil {
		automation.IsMultiStep = *req.IsMultiStep
	}

	if req.Steps != nil {
		automation.Steps = req.Steps
	}

	if req.ExitCriteria != nil {
		automation.ExitCriteria = req.ExitCriteria
	}

	if req.MaxDurationDays != nil {
		automation.MaxDurationDays = req.MaxDurationDays
	}

	if req.SafetyExitEnabled != nil {
		automation.SafetyExitEnabled = *req.SafetyExitEnabled
	}

	if err := h.validateDefinition(automation); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.SaveAutomation(c.Context(), automation); err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	if err := h.persistence.DeleteAutomation(c.Context(), id); err != nil {
		return handlePersistenceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateAutomation(c fiber.Ctx) error {
	return h.setActive(c, true)
}

// DeactivateAutomation stops new enrollments. Existing active
// enrollments keep running unless the automation opted into safety
// exits.
func (h *APIHandlers) DeactivateAutomation(c fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *APIHandlers) setActive(c fiber.Ctx, active bool) error {
	automation, errResp := h.fetchAutomation(c)
	if automation == nil {
		return errResp
	}

	automation.IsActive = active

	if err := h.persistence.SaveAutomation(c.Context(), automation); err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(automation)
}

// TestAutomation force-runs one enrollment pass synchronously so authors
// can watch an automation move without waiting for the scheduler.
func (h *APIHandlers) TestAutomation(c fiber.Ctx) error {
	automation, errResp := h.fetchAutomation(c)
	if automation == nil {
		return errResp
	}

	var req TestAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if !automation.IsMultiStep {
		if _, err := h.executor.RunSingleStep(c.Context(), automation, req.EntityType, req.EntityID); err != nil {
			return internalError(c, err)
		}

		executions, err := h.persistence.ExecutionsByEntity(c.Context(), req.EntityType, req.EntityID, defaultExecutionLimit)
		if err != nil {
			return internalError(c, err)
		}

		return c.JSON(TestAutomationResponse{Executions: executions})
	}

	enrollment, err := h.persistence.ActiveEnrollment(c.Context(), automation.ID, req.EntityType, req.EntityID)
	if err != nil {
		return internalError(c, err)
	}

	if enrollment == nil {
		now := time.Now().UTC()
		due := now
		enrollment = &models.Enrollment{
			AutomationID:     automation.ID,
			EntityType:       req.EntityType,
			EntityID:         req.EntityID,
			CurrentStepIndex: 0,
			Status:           models.EnrollmentStatusActive,
			EnrolledAt:       now,
			NextDueAt:        &due,
		}

		if err := h.persistence.CreateEnrollment(c.Context(), enrollment); err != nil {
			return handlePersistenceError(c, err)
		}
	}

	if err := h.executor.Process(c.Context(), enrollment); err != nil {
		return internalError(c, err)
	}

	refreshed, err := h.persistence.EnrollmentByID(c.Context(), enrollment.ID)
	if err != nil {
		return internalError(c, err)
	}

	executions, err := h.persistence.ExecutionsByEnrollment(c.Context(), enrollment.ID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(TestAutomationResponse{Enrollment: refreshed, Executions: executions})
}

// InjectEvent pushes one entity-lifecycle event through the matcher
// synchronously. Deployments without a broker drive the engine entirely
// through this endpoint.
func (h *APIHandlers) InjectEvent(c fiber.Ctx) error {
	var req InjectEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	entityType := req.EntityType
	if entityType == "" {
		entityType = req.TriggerType.EntityType()
	}

	if entityType == "" {
		return badRequest(c, "Unknown trigger type '"+string(req.TriggerType)+"'")
	}

	event := &events.EntityEvent{
		BaseEvent:   events.NewBaseEvent(events.EntityChangedEvent),
		TriggerType: req.TriggerType,
		EntityType:  entityType,
		EntityID:    req.EntityID,
		Before:      req.Before,
		After:       req.After,
	}

	if err := h.matcher.Match(c.Context(), event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"event_id": event.ID})
}

func (h *APIHandlers) GetAutomationEnrollments(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	enrollments, err := h.persistence.EnrollmentsByAutomation(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(enrollments)
}

func (h *APIHandlers) GetAutomationExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	executions, err := h.persistence.ExecutionsByAutomation(c.Context(), id, h.parseLimit(c))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) GetEntityEnrollments(c fiber.Ctx) error {
	entityType, entityID, err := h.parseEntityParams(c)
	if err != nil {
		return err
	}

	enrollments, err := h.persistence.EnrollmentsByEntity(c.Context(), entityType, entityID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(enrollments)
}

func (h *APIHandlers) GetEntityExecutions(c fiber.Ctx) error {
	entityType, entityID, err := h.parseEntityParams(c)
	if err != nil {
		return err
	}

	executions, err := h.persistence.ExecutionsByEntity(c.Context(), entityType, entityID, h.parseLimit(c))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// validateDefinition runs structural validation plus per-action config
// schema validation.
func (h *APIHandlers) validateDefinition(automation *models.Automation) error {
	if err := automation.Validate(); err != nil {
		return err
	}

	for _, step := range automation.Steps {
		for _, item := range step.Actions {
			if err := h.registry.ValidateActionConfig(item.Type, item.Config); err != nil {
				return err
			}
		}
	}

	return nil
}

// fetchAutomation loads the automation from the :id route param. On
// failure it writes the error response and returns it as the handler
// result; the automation is nil in that case.
func (h *APIHandlers) fetchAutomation(c fiber.Ctx) (*models.Automation, error) {
	id := c.Params("id")
	if id == "" {
		return nil, badRequest(c, "Automation ID is required")
	}

	automation, err := h.persistence.AutomationByID(c.Context(), id)
	if err != nil {
		return nil, handlePersistenceError(c, err)
	}

	return automation, nil
}

func (h *APIHandlers) parseEntityParams(c fiber.Ctx) (models.EntityType, string, error) {
	entityType := models.EntityType(c.Params("type"))
	if entityType != models.EntityTypeContact && entityType != models.EntityTypeDeal {
		return "", "", badRequest(c, "Entity type must be 'contact' or 'deal'")
	}

	entityID := c.Params("entityId")
	if entityID == "" {
		return "", "", badRequest(c, "Entity ID is required")
	}

	return entityType, entityID, nil
}

func (h *APIHandlers) parseLimit(c fiber.Ctx) int {
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			return limit
		}
	}

	return defaultExecutionLimit
}
