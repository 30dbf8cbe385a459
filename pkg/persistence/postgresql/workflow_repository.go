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

const workflowColumns = `
	id
  , tenant_id
  , name
  , description
  , type
  , status
  , config
  , triggers
  , last_run_id
  , success_rate
  , runs_today
  , hitl_enabled
  , metadata
  , created_at
  , updated_at
  , deleted_at
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetAll returns every non-deleted workflow for a tenant.
func (r *WorkflowRepository) GetAll(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save upserts a workflow. The tenant_id column is written only on insert;
// updates never change workflow ownership.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	configJSON, err := json.Marshal(workflow.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	triggersJSON, err := json.Marshal(workflow.Triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal triggers: %w", err)
	}

	metadataJSON, err := json.Marshal(workflow.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO workflows (id, tenant_id, name, description, type, status, config, triggers,
			last_run_id, success_rate, runs_today, hitl_enabled, metadata, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			config = EXCLUDED.config,
			triggers = EXCLUDED.triggers,
			hitl_enabled = EXCLUDED.hitl_enabled,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.TenantID,
		workflow.Name,
		workflow.Description,
		workflow.Type,
		workflow.Status,
		configJSON,
		triggersJSON,
		workflow.LastRunID,
		workflow.SuccessRate,
		workflow.RunsToday,
		workflow.HITLEnabled,
		metadataJSON,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// ReplaceTriggers atomically swaps a workflow's trigger list.
func (r *WorkflowRepository) ReplaceTriggers(ctx context.Context, workflowID string, triggers []models.WorkflowTrigger) error {
	triggersJSON, err := json.Marshal(triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal triggers: %w", err)
	}

	query := `UPDATE workflows SET triggers = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, workflowID, triggersJSON)
	if err != nil {
		return fmt.Errorf("failed to replace triggers: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

// FindByWebhookPath returns running workflows, across all tenants, with a
// webhook trigger whose path matches exactly.
func (r *WorkflowRepository) FindByWebhookPath(ctx context.Context, path string) ([]*models.TriggerMatch, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL
		  AND status = $1
		  AND triggers @> $2
		ORDER BY created_at
	`

	pathFilter, err := json.Marshal([]map[string]any{{"type": models.TriggerTypeWebhook, "path": path}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal path filter: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, models.WorkflowStatusRunning, pathFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows by webhook path: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var matches []*models.TriggerMatch

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		for _, trigger := range workflow.Triggers {
			if trigger.Type == models.TriggerTypeWebhook && trigger.Path == path {
				matches = append(matches, &models.TriggerMatch{Workflow: workflow, Trigger: trigger})
			}
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow matches: %w", err)
	}

	return matches, nil
}

// FindScheduled returns running workflows, across all tenants, carrying at
// least one schedule trigger, one match per trigger.
func (r *WorkflowRepository) FindScheduled(ctx context.Context) ([]*models.TriggerMatch, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL
		  AND status = $1
		  AND triggers @> $2
		ORDER BY created_at
	`

	scheduleFilter, err := json.Marshal([]map[string]any{{"type": models.TriggerTypeSchedule}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schedule filter: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, models.WorkflowStatusRunning, scheduleFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var matches []*models.TriggerMatch

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		for _, trigger := range workflow.Triggers {
			if trigger.Type == models.TriggerTypeSchedule && trigger.Cron != "" {
				matches = append(matches, &models.TriggerMatch{Workflow: workflow, Trigger: trigger})
			}
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled workflows: %w", err)
	}

	return matches, nil
}

// RecordRun bumps runs_today and last_run_id atomically in the database, so
// concurrent dispatches never lose counts to read-modify-write races. The
// daily counter lazily resets on the first run of a new day.
func (r *WorkflowRepository) RecordRun(ctx context.Context, workflowID, runID string) error {
	query := `
		UPDATE workflows
		SET runs_today = CASE
				WHEN updated_at::date < CURRENT_DATE THEN 1
				ELSE runs_today + 1
			END,
			last_run_id = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	_, err := r.db.ExecContext(ctx, query, workflowID, runID)
	if err != nil {
		return fmt.Errorf("failed to record workflow run: %w", err)
	}

	return nil
}

// RecordOutcome recomputes the workflow's success rate from its finished
// executions in one statement. The executions table is authoritative, so the
// success flag is not consulted here.
func (r *WorkflowRepository) RecordOutcome(ctx context.Context, workflowID string, _ bool) error {
	query := `
		UPDATE workflows
		SET success_rate = COALESCE((
				SELECT AVG(CASE WHEN status = 'completed' THEN 1.0 ELSE 0.0 END)
				FROM workflow_executions
				WHERE workflow_id = $1 AND status IN ('completed', 'failed')
			), 0),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	_, err := r.db.ExecContext(ctx, query, workflowID)
	if err != nil {
		return fmt.Errorf("failed to record workflow outcome: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflow(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var (
		workflow                               models.Workflow
		configJSON, triggersJSON, metadataJSON []byte
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Type,
		&workflow.Status,
		&configJSON,
		&triggersJSON,
		&workflow.LastRunID,
		&workflow.SuccessRate,
		&workflow.RunsToday,
		&workflow.HITLEnabled,
		&metadataJSON,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if configJSON != nil {
		err := json.Unmarshal(configJSON, &workflow.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if triggersJSON != nil {
		err := json.Unmarshal(triggersJSON, &workflow.Triggers)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
		}
	}

	if metadataJSON != nil {
		err := json.Unmarshal(metadataJSON, &workflow.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &workflow, nil
}
