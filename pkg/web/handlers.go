// Package web provides the HTTP handlers for the orchestration API: workflow
// control surface, webhook ingress, OAuth flow, connectors and tools.
package web

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/relayforge/relayforge/pkg/audit"
	"github.com/relayforge/relayforge/pkg/connectors"
	"github.com/relayforge/relayforge/pkg/engine"
	"github.com/relayforge/relayforge/pkg/graph"
	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/tools"
	"github.com/relayforge/relayforge/pkg/triggers"
)

// TenantHeader carries the authenticated tenant on every scoped route.
const TenantHeader = "X-Tenant-ID"

// WebhookKeyHeader carries the optional shared secret on webhook ingress.
const WebhookKeyHeader = "X-Webhook-Key"

type APIHandlers struct {
	persistence persistence.Persistence
	engine      engine.Engine
	router      *triggers.Router
	connectors  *connectors.Gateway
	oauth       *connectors.OAuthService
	tools       *tools.Gateway
	graph       *graph.Store
	auditor     *audit.Auditor
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	p persistence.Persistence,
	eng engine.Engine,
	router *triggers.Router,
	connectorGateway *connectors.Gateway,
	oauthService *connectors.OAuthService,
	toolGateway *tools.Gateway,
	graphStore *graph.Store,
	auditor *audit.Auditor,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		engine:      eng,
		router:      router,
		connectors:  connectorGateway,
		oauth:       oauthService,
		tools:       toolGateway,
		graph:       graphStore,
		auditor:     auditor,
		validator:   validate,
		logger:      logger.With("module", "web"),
	}
}

func (h *APIHandlers) tenant(c fiber.Ctx) (string, error) {
	tenantID := c.Get(TenantHeader)
	if tenantID == "" {
		return "", badRequest(c, TenantHeader+" header is required")
	}

	return tenantID, nil
}

// ownedWorkflow loads a workflow and verifies the caller's tenant owns it.
// Foreign workflows answer not-found, never forbidden, so tenants cannot
// probe for each other's ids.
func (h *APIHandlers) ownedWorkflow(c fiber.Ctx, tenantID, id string) (*models.Workflow, error) {
	workflow, err := h.persistence.WorkflowRepository().GetByID(c.Context(), id)
	if err != nil {
		return nil, handleServiceError(c, err)
	}

	if workflow.TenantID != tenantID {
		return nil, notFound(c, "workflow not found")
	}

	return workflow, nil
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	workflows, err := h.persistence.WorkflowRepository().GetAll(c.Context(), tenantID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows, "total_count": len(workflows)})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	workflow, err := h.ownedWorkflow(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	config, err := decodeWorkflowConfig(req.Config)
	if err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Status:      models.WorkflowStatusPaused,
		Config:      config,
		HITLEnabled: req.HITLEnabled,
		Metadata:    req.Metadata,
	}

	err = h.persistence.WorkflowRepository().Save(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	if len(req.Triggers) > 0 {
		err = h.router.RegisterTriggers(c.Context(), workflow.ID, req.Triggers)
		if err != nil {
			return badRequest(c, err.Error())
		}

		workflow.Triggers = req.Triggers
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.ownedWorkflow(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	if req.Name != nil {
		workflow.Name = *req.Name
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.Config != nil {
		config, err := decodeWorkflowConfig(req.Config)
		if err != nil {
			return badRequest(c, err.Error())
		}

		workflow.Config = config
	}

	if req.HITLEnabled != nil {
		workflow.HITLEnabled = *req.HITLEnabled
	}

	if req.Metadata != nil {
		workflow.Metadata = req.Metadata
	}

	err = h.persistence.WorkflowRepository().Save(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	workflow, err := h.ownedWorkflow(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	err = h.persistence.WorkflowRepository().Delete(c.Context(), workflow.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) setWorkflowStatus(c fiber.Ctx, status models.WorkflowStatus) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	workflow, err := h.ownedWorkflow(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	workflow.Status = status

	err = h.persistence.WorkflowRepository().Save(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ResumeWorkflow(c fiber.Ctx) error {
	return h.setWorkflowStatus(c, models.WorkflowStatusRunning)
}

func (h *APIHandlers) PauseWorkflow(c fiber.Ctx) error {
	return h.setWorkflowStatus(c, models.WorkflowStatusPaused)
}

func (h *APIHandlers) RegisterTriggers(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req RegisterTriggersRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflow, err := h.ownedWorkflow(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	err = h.router.RegisterTriggers(c.Context(), workflow.ID, req.Triggers)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req RunWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflow, err := h.ownedWorkflow(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	runID, err := h.engine.Start(c.Context(), workflow, req.Input)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"execution_id": runID})
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	workflow, err := h.ownedWorkflow(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	executions, err := h.persistence.ExecutionRepository().ListByWorkflow(c.Context(), workflow.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions, "total_count": len(executions)})
}

// ownedExecution loads an execution and verifies tenant ownership.
func (h *APIHandlers) ownedExecution(c fiber.Ctx, tenantID, id string) (*models.WorkflowExecution, error) {
	execution, err := h.engine.Describe(c.Context(), id)
	if err != nil {
		return nil, handleServiceError(c, err)
	}

	if execution.TenantID != tenantID {
		return nil, notFound(c, "execution not found")
	}

	return execution, nil
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	execution, err := h.ownedExecution(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(execution)
}

func (h *APIHandlers) SignalExecution(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req SignalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.ownedExecution(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	err = h.engine.Signal(c.Context(), execution.ID, req.Signal, req.Payload)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) QueryExecution(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	execution, err := h.ownedExecution(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	result, err := h.engine.Query(c.Context(), execution.ID, c.Params("name"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.JSON(result)
}

func (h *APIHandlers) TerminateExecution(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req TerminateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	execution, err := h.ownedExecution(c, tenantID, c.Params("id"))
	if err != nil {
		return err
	}

	err = h.engine.Terminate(c.Context(), execution.ID, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func decodeWorkflowConfig(raw map[string]any) (models.WorkflowConfig, error) {
	var config models.WorkflowConfig

	if raw == nil {
		return config, nil
	}

	err := models.ValidateWorkflowConfig(raw)
	if err != nil {
		return config, err
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return config, fmt.Errorf("failed to encode config: %w", err)
	}

	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	return config, nil
}
