package web

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
)

// HandleWebhook is the public webhook ingress. The wildcard path addresses
// the registered trigger; the optional key header is checked per trigger.
func (h *APIHandlers) HandleWebhook(c fiber.Ctx) error {
	path := c.Params("*")
	if path == "" {
		return badRequest(c, "webhook path is required")
	}

	var payload map[string]any
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Invalid JSON payload")
		}
	}

	result := h.router.Dispatch(c.Context(), path, c.Get(WebhookKeyHeader), payload)

	return c.JSON(result)
}

func (h *APIHandlers) OAuthAuthorize(c fiber.Ctx) error {
	connector := c.Params("connector")
	tenantID := c.Query("tenant")
	redirectURI := c.Query("redirectUri")

	if tenantID == "" || redirectURI == "" {
		return badRequest(c, "tenant and redirectUri query parameters are required")
	}

	onboarding, _ := strconv.ParseBool(c.Query("onboarding"))

	authorizationURL, err := h.oauth.Authorize(c.Context(), tenantID, connector, redirectURI, onboarding)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"authorization_url": authorizationURL})
}

func (h *APIHandlers) OAuthCallback(c fiber.Ctx) error {
	var req OAuthCallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	installation, err := h.oauth.Callback(c.Context(), req.Tenant, req.Connector, req.RedirectURI, req.Code, req.State)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"status": "success", "installation": installation})
}

func (h *APIHandlers) ListConnectors(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"connectors": h.connectors.Registry().All()})
}

func (h *APIHandlers) ListInstallations(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	installations, err := h.connectors.ListInstallations(c.Context(), tenantID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"installations": installations, "total_count": len(installations)})
}

func (h *APIHandlers) InstallConnector(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req InstallConnectorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	installation, err := h.connectors.Install(c.Context(), tenantID, c.Params("slug"), req.Config)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(installation)
}

func (h *APIHandlers) UninstallConnector(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	err = h.connectors.Uninstall(c.Context(), tenantID, c.Params("slug"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RotateConnectorCredentials(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req RotateCredentialsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err = h.connectors.RotateCredentials(c.Context(), tenantID, c.Params("slug"), req.Credentials)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ListTools(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	discovered, err := h.tools.ListTools(c.Context(), tenantID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tools": discovered, "total_count": len(discovered)})
}

func (h *APIHandlers) CallTool(c fiber.Ctx) error {
	tenantID, err := h.tenant(c)
	if err != nil {
		return err
	}

	var req ToolCallRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.tools.CallTool(c.Context(), tenantID, req.Server, req.Tool, req.Args, req.SourceID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) TopTools(c fiber.Ctx) error {
	sourceID := c.Query("source")
	if sourceID == "" {
		return badRequest(c, "source query parameter is required")
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	ranked, err := h.graph.TopTools(c.Context(), sourceID, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"tools": ranked})
}

// RunAudit runs the isolation audit on demand. The report is advisory and
// the endpoint always answers 200 with the findings.
func (h *APIHandlers) RunAudit(c fiber.Ctx) error {
	report := h.auditor.Run(c.Context())

	return c.JSON(report)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
