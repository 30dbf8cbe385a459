package connectors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/secrets"
)

// Gateway implements the connector installation protocol: segregate the
// config, store secrets behind the secret store, persist only the public
// half in the relational schema.
type Gateway struct {
	registry      *Registry
	installations persistence.InstallationRepository
	secretStore   secrets.Store
	logger        *slog.Logger
}

// NewGateway creates a connector gateway.
func NewGateway(logger *slog.Logger, registry *Registry, installations persistence.InstallationRepository, secretStore secrets.Store) *Gateway {
	return &Gateway{
		registry:      registry,
		installations: installations,
		secretStore:   secretStore,
		logger:        logger,
	}
}

// Registry returns the connector catalog behind the gateway.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// ListInstallations returns every installation owned by a tenant.
func (g *Gateway) ListInstallations(ctx context.Context, tenantID string) ([]*models.ConnectorInstallation, error) {
	return g.installations.ListByTenant(ctx, tenantID)
}

// GetInstallation returns a tenant's installation of a connector.
func (g *Gateway) GetInstallation(ctx context.Context, tenantID, slug string) (*models.ConnectorInstallation, error) {
	return g.installations.GetByTenantAndConnector(ctx, tenantID, slug)
}

// SetInstallationStatus records an installation's health transition.
func (g *Gateway) SetInstallationStatus(ctx context.Context, installationID string, status models.InstallationStatus) error {
	return g.installations.SetStatus(ctx, installationID, status)
}

// Install installs a connector for a tenant. A secret-store failure aborts
// the installation: no installation record may exist whose secrets were
// silently dropped.
func (g *Gateway) Install(ctx context.Context, tenantID, slug string, config map[string]string) (*models.ConnectorInstallation, error) {
	definition, err := g.registry.Get(slug)
	if err != nil {
		return nil, err
	}

	public, secret := Segregate(config)

	installation := &models.ConnectorInstallation{
		TenantID:     tenantID,
		Connector:    definition.Slug,
		Kind:         definition.Kind,
		PublicConfig: public,
		Status:       models.InstallationStatusPending,
	}

	if len(secret) > 0 {
		path := secrets.ConnectorPath(tenantID, definition.Slug)

		err := g.secretStore.Store(ctx, path, secret, map[string]string{"connector": definition.Slug})
		if err != nil {
			g.logger.ErrorContext(ctx, "aborting installation, secret store failed",
				"tenant_id", tenantID,
				"connector", definition.Slug,
				"error", err)

			return nil, fmt.Errorf("%w: %w", ErrCredentialStorage, err)
		}

		installation.CredentialsPath = path
	}

	installation.Status = models.InstallationStatusConnected

	err = g.installations.Save(ctx, installation)
	if err != nil {
		return nil, fmt.Errorf("failed to save installation: %w", err)
	}

	return installation, nil
}

// Resolve merges an installation's public config with its stored secrets.
// A missing secret bundle is logged but not fatal: secret-less connectors
// are legitimate, and callers that require credentials check for them.
func (g *Gateway) Resolve(ctx context.Context, installation *models.ConnectorInstallation) (map[string]string, error) {
	if installation.CredentialsPath == "" {
		return Merge(installation.PublicConfig, nil), nil
	}

	secret, err := g.secretStore.Get(ctx, installation.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials: %w", err)
	}

	if secret == nil {
		g.logger.WarnContext(ctx, "installation has credentials path but no stored secret",
			"tenant_id", installation.TenantID,
			"connector", installation.Connector,
			"path", installation.CredentialsPath)

		// Surface the broken credential pointer on the installation so
		// operators see it without tailing logs.
		statusErr := g.installations.SetStatus(ctx, installation.ID, models.InstallationStatusError)
		if statusErr != nil {
			g.logger.ErrorContext(ctx, "failed to flag installation error status",
				"installation_id", installation.ID, "error", statusErr)
		}
	}

	return Merge(installation.PublicConfig, secret), nil
}

// Uninstall removes an installation and destroys the secrets it owns.
func (g *Gateway) Uninstall(ctx context.Context, tenantID, slug string) error {
	installation, err := g.installations.GetByTenantAndConnector(ctx, tenantID, slug)
	if err != nil {
		return err
	}

	if installation.CredentialsPath != "" {
		err := g.secretStore.Delete(ctx, installation.CredentialsPath)
		if err != nil {
			return fmt.Errorf("failed to delete credentials: %w", err)
		}
	}

	err = g.installations.Delete(ctx, installation.ID)
	if err != nil {
		return fmt.Errorf("failed to delete installation: %w", err)
	}

	return nil
}

// RotateCredentials stores a new credential bundle for an installation.
func (g *Gateway) RotateCredentials(ctx context.Context, tenantID, slug string, data map[string]string) error {
	installation, err := g.installations.GetByTenantAndConnector(ctx, tenantID, slug)
	if err != nil {
		return err
	}

	path := installation.CredentialsPath
	if path == "" {
		path = secrets.ConnectorPath(tenantID, slug)
	}

	err = g.secretStore.Rotate(ctx, path, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialStorage, err)
	}

	if installation.CredentialsPath == "" {
		installation.CredentialsPath = path

		err = g.installations.Save(ctx, installation)
		if err != nil {
			return fmt.Errorf("failed to record credentials path: %w", err)
		}
	}

	return nil
}
