package models

import "time"

// ConnectorKind classifies a connector integration.
type ConnectorKind string

const (
	ConnectorKindCRM        ConnectorKind = "crm"
	ConnectorKindMarketing  ConnectorKind = "marketing"
	ConnectorKindLLM        ConnectorKind = "llm"
	ConnectorKindEcommerce  ConnectorKind = "ecommerce"
	ConnectorKindCMS        ConnectorKind = "cms"
	ConnectorKindToolServer ConnectorKind = "tool_server"
)

// InstallationStatus represents the health of a connector installation.
type InstallationStatus string

const (
	InstallationStatusPending      InstallationStatus = "pending"
	InstallationStatusConnected    InstallationStatus = "connected"
	InstallationStatusDisconnected InstallationStatus = "disconnected"
	InstallationStatusError        InstallationStatus = "error"
)

// ConnectorInstallation is a tenant's configured instance of a connector.
// PublicConfig never contains sensitive values; credentials live only behind
// CredentialsPath in the secret store. CredentialsPath is empty for
// secret-less connectors.
type ConnectorInstallation struct {
	ID              string             `json:"id"`
	TenantID        string             `json:"tenant_id" validate:"required"`
	Connector       string             `json:"connector" validate:"required"`
	Kind            ConnectorKind      `json:"kind"`
	PublicConfig    map[string]string  `json:"public_config"`
	CredentialsPath string             `json:"credentials_path,omitempty"`
	Endpoint        string             `json:"endpoint,omitempty"`
	Status          InstallationStatus `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
