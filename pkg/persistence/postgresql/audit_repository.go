package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// auditableTables is the fixed allow-list of tenant-scoped tables the
// segmentation check may touch. Table names are never interpolated from
// caller input.
var auditableTables = map[string]bool{
	"workflows":               true,
	"workflow_executions":     true,
	"connector_installations": true,
}

// AuditRepository exposes read-only tenant isolation queries.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// NullTenantCount counts rows missing a tenant key in a scoped table.
func (r *AuditRepository) NullTenantCount(ctx context.Context, table string) (int64, error) {
	if !auditableTables[table] {
		return 0, fmt.Errorf("table %q is not tenant-scoped", table)
	}

	var count int64

	query := `SELECT COUNT(*) FROM ` + table + ` WHERE tenant_id IS NULL OR tenant_id = ''`

	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count null-tenant rows in %s: %w", table, err)
	}

	return count, nil
}

// CrossTenantWorkflowExecutions returns execution ids whose tenant differs
// from their owning workflow's tenant.
func (r *AuditRepository) CrossTenantWorkflowExecutions(ctx context.Context) ([]string, error) {
	query := `
		SELECT e.id
		FROM workflow_executions e
		JOIN workflows w ON w.id = e.workflow_id
		WHERE e.tenant_id <> w.tenant_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query cross-tenant executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cross-tenant executions: %w", err)
	}

	return ids, nil
}
