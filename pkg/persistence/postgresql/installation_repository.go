package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/persistence"
)

const installationColumns = `
	id
  , tenant_id
  , connector
  , kind
  , public_config
  , credentials_path
  , endpoint
  , status
  , created_at
  , updated_at
`

// InstallationRepository handles connector installation database operations.
type InstallationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstallationRepository creates a new installation repository.
func NewInstallationRepository(db *sql.DB, logger *slog.Logger) *InstallationRepository {
	return &InstallationRepository{db: db, logger: logger}
}

// Save upserts an installation, keyed by (tenant_id, connector).
func (r *InstallationRepository) Save(ctx context.Context, installation *models.ConnectorInstallation) error {
	now := time.Now().UTC()

	if installation.CreatedAt.IsZero() {
		installation.CreatedAt = now
	}

	installation.UpdatedAt = now

	if installation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate installation ID: %w", err)
		}

		installation.ID = id.String()
	}

	configJSON, err := json.Marshal(installation.PublicConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal public config: %w", err)
	}

	query := `
		INSERT INTO connector_installations (id, tenant_id, connector, kind, public_config,
			credentials_path, endpoint, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, connector) DO UPDATE SET
			kind = EXCLUDED.kind,
			public_config = EXCLUDED.public_config,
			credentials_path = EXCLUDED.credentials_path,
			endpoint = EXCLUDED.endpoint,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		installation.ID,
		installation.TenantID,
		installation.Connector,
		installation.Kind,
		configJSON,
		installation.CredentialsPath,
		installation.Endpoint,
		installation.Status,
		installation.CreatedAt,
		installation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save installation: %w", err)
	}

	return nil
}

// GetByID returns an installation by its ID.
func (r *InstallationRepository) GetByID(ctx context.Context, id string) (*models.ConnectorInstallation, error) {
	query := `SELECT ` + installationColumns + ` FROM connector_installations WHERE id = $1`

	installation, err := r.scanInstallation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrInstallationNotFound
		}

		return nil, fmt.Errorf("failed to scan installation: %w", err)
	}

	return installation, nil
}

// GetByTenantAndConnector returns a tenant's installation of a connector.
func (r *InstallationRepository) GetByTenantAndConnector(ctx context.Context, tenantID, connector string) (*models.ConnectorInstallation, error) {
	query := `SELECT ` + installationColumns + `
		FROM connector_installations
		WHERE tenant_id = $1 AND connector = $2
	`

	installation, err := r.scanInstallation(r.db.QueryRowContext(ctx, query, tenantID, connector))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrInstallationNotFound
		}

		return nil, fmt.Errorf("failed to scan installation: %w", err)
	}

	return installation, nil
}

// ListByTenant returns every installation owned by a tenant.
func (r *InstallationRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.ConnectorInstallation, error) {
	query := `SELECT ` + installationColumns + `
		FROM connector_installations
		WHERE tenant_id = $1
		ORDER BY created_at
	`

	return r.queryInstallations(ctx, query, tenantID)
}

// ListActiveByKind returns a tenant's connected installations of a kind.
func (r *InstallationRepository) ListActiveByKind(ctx context.Context, tenantID string, kind models.ConnectorKind) ([]*models.ConnectorInstallation, error) {
	query := `SELECT ` + installationColumns + `
		FROM connector_installations
		WHERE tenant_id = $1 AND kind = $2 AND status = $3
		ORDER BY created_at
	`

	return r.queryInstallations(ctx, query, tenantID, kind, models.InstallationStatusConnected)
}

// SetStatus updates the installation status.
func (r *InstallationRepository) SetStatus(ctx context.Context, id string, status models.InstallationStatus) error {
	query := `UPDATE connector_installations SET status = $2, updated_at = NOW() WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to set installation status: %w", err)
	}

	return nil
}

// Delete removes an installation record.
func (r *InstallationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM connector_installations WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete installation: %w", err)
	}

	return nil
}

func (r *InstallationRepository) queryInstallations(ctx context.Context, query string, args ...any) ([]*models.ConnectorInstallation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installations: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	installations := make([]*models.ConnectorInstallation, 0)

	for rows.Next() {
		installation, err := r.scanInstallation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installation: %w", err)
		}

		installations = append(installations, installation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installations: %w", err)
	}

	return installations, nil
}

func (r *InstallationRepository) scanInstallation(scanner interface {
	Scan(dest ...any) error
}) (*models.ConnectorInstallation, error) {
	var (
		installation models.ConnectorInstallation
		configJSON   []byte
	)

	err := scanner.Scan(
		&installation.ID,
		&installation.TenantID,
		&installation.Connector,
		&installation.Kind,
		&configJSON,
		&installation.CredentialsPath,
		&installation.Endpoint,
		&installation.Status,
		&installation.CreatedAt,
		&installation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if configJSON != nil {
		err := json.Unmarshal(configJSON, &installation.PublicConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal public config: %w", err)
		}
	}

	return &installation, nil
}
