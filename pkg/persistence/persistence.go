// Package persistence provides the data storage abstraction for workflows,
// executions and connector installations.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/relayforge/relayforge/pkg/models"
)

type WorkflowRepository interface {
	GetAll(ctx context.Context, tenantID string) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error

	// ReplaceTriggers atomically swaps a workflow's trigger list.
	ReplaceTriggers(ctx context.Context, workflowID string, triggers []models.WorkflowTrigger) error

	// FindByWebhookPath returns every running workflow, across all tenants,
	// with a webhook trigger matching the exact path.
	FindByWebhookPath(ctx context.Context, path string) ([]*models.TriggerMatch, error)

	// FindScheduled returns every running workflow, across all tenants, that
	// carries at least one schedule trigger, one match per trigger.
	FindScheduled(ctx context.Context) ([]*models.TriggerMatch, error)

	// RecordRun bumps runs_today and last_run_id in a single atomic update.
	// The counter resets on the first run of a new day.
	RecordRun(ctx context.Context, workflowID, runID string) error

	// RecordOutcome folds a finished execution into the workflow's success
	// rate in a single atomic update.
	RecordOutcome(ctx context.Context, workflowID string, success bool) error
}

type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)

	// SaveCheckpoint persists the durable state of a running execution.
	SaveCheckpoint(ctx context.Context, id string, status models.ExecutionStatus, phase string, state json.RawMessage, waitDeadline *time.Time) error

	// MarkTerminal moves an execution to a terminal status. It is a no-op if
	// the execution is already terminal.
	MarkTerminal(ctx context.Context, id string, status models.ExecutionStatus, result map[string]any, errorMessage string) error

	// AddCost accumulates an activity cost estimate onto the execution row.
	AddCost(ctx context.Context, id string, cost float64) error

	// FindExpiredWaiting returns executions whose wait deadline has passed.
	FindExpiredWaiting(ctx context.Context, now time.Time) ([]*models.WorkflowExecution, error)

	// DeleteOlderThan prunes terminal executions finished before the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type InstallationRepository interface {
	Save(ctx context.Context, installation *models.ConnectorInstallation) error
	GetByID(ctx context.Context, id string) (*models.ConnectorInstallation, error)
	GetByTenantAndConnector(ctx context.Context, tenantID, connector string) (*models.ConnectorInstallation, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.ConnectorInstallation, error)
	ListActiveByKind(ctx context.Context, tenantID string, kind models.ConnectorKind) ([]*models.ConnectorInstallation, error)
	SetStatus(ctx context.Context, id string, status models.InstallationStatus) error
	Delete(ctx context.Context, id string) error
}

// SecretBlobRepository backs the database secret store with encrypted,
// versioned blobs addressed by secret path.
type SecretBlobRepository interface {
	Upsert(ctx context.Context, path string, ciphertext []byte, version int) error
	Get(ctx context.Context, path string) (ciphertext []byte, version int, err error)
	Delete(ctx context.Context, path string) error
	ListPaths(ctx context.Context, prefix string) ([]string, error)
}

// AuditRepository exposes the read-only queries behind tenant isolation checks.
type AuditRepository interface {
	// NullTenantCount counts rows missing a tenant key in a scoped table.
	NullTenantCount(ctx context.Context, table string) (int64, error)

	// CrossTenantWorkflowExecutions returns execution ids whose tenant differs
	// from their owning workflow's tenant.
	CrossTenantWorkflowExecutions(ctx context.Context) ([]string, error)
}

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	InstallationRepository() InstallationRepository
	SecretBlobRepository() SecretBlobRepository
	AuditRepository() AuditRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
