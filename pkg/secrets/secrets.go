// Package secrets provides per-tenant credential storage behind a pluggable
// backend. Secrets are addressed by hierarchical path and never written into
// the relational schema in plaintext.
package secrets

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable is returned when the backend cannot be reached or
	// is not authenticated. Backends fail closed: an unavailable backend never
	// degrades to plaintext storage.
	ErrBackendUnavailable = errors.New("secret backend unavailable")
)

// Store is the contract both secret backends satisfy. A missing path is not
// an error: Get returns (nil, nil) so callers can distinguish "no secrets"
// from "backend failure".
type Store interface {
	Store(ctx context.Context, path string, data map[string]string, metadata map[string]string) error
	Get(ctx context.Context, path string) (map[string]string, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)

	// Rotate stores a new version of the bundle at the path.
	Rotate(ctx context.Context, path string, data map[string]string) error
}

// ConnectorPath builds the canonical secret path for a tenant's connector
// credentials: tenants/{tenant}/connectors/{connector}.
func ConnectorPath(tenantID, connector string) string {
	return fmt.Sprintf("tenants/%s/connectors/%s", tenantID, connector)
}

// TenantPrefix is the path prefix covering every secret a tenant owns.
func TenantPrefix(tenantID string) string {
	return fmt.Sprintf("tenants/%s/", tenantID)
}
