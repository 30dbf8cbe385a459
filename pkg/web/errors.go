package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/relayforge/relayforge/pkg/connectors"
	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/secrets"
	"github.com/relayforge/relayforge/pkg/tools"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps the typed error taxonomy onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	case persistence.IsInstallationNotFound(err):
		return notFound(c, "installation not found")

	case connectors.IsConnectorNotFound(err):
		return notFound(c, "connector not found")

	case tools.IsToolServerNotFound(err):
		return notFound(c, "tool server not found")

	case connectors.IsInvalidOAuthState(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("invalid_state").
			WithDetail("oauth state was not issued for this tenant and connector")

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case errors.Is(err, connectors.ErrOAuthNotSupported):
		return badRequest(c, err.Error())

	case connectors.IsCredentialStorage(err), errors.Is(err, secrets.ErrBackendUnavailable):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("secret_backend_unavailable").
			WithDetail("credential storage backend rejected the operation")

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	default:
		return internalError(c, err)
	}
}
