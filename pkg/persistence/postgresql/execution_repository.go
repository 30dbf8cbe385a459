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

const executionColumns = `
	id
  , workflow_id
  , tenant_id
  , workflow_type
  , status
  , phase
  , input
  , state
  , wait_deadline
  , result
  , error_message
  , cost_estimate
  , started_at
  , completed_at
`

// ExecutionRepository handles workflow execution database operations.
// Executions are append-only: rows are created once and only their
// checkpoint and terminal columns are ever updated.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a new execution record.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now().UTC()
	}

	inputJSON, err := json.Marshal(execution.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	resultJSON, err := json.Marshal(execution.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (id, workflow_id, tenant_id, workflow_type, status, phase,
			input, state, wait_deadline, result, error_message, cost_estimate, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.TenantID,
		execution.WorkflowType,
		execution.Status,
		execution.Phase,
		inputJSON,
		[]byte(execution.State),
		execution.WaitDeadline,
		resultJSON,
		execution.ErrorMessage,
		execution.CostEstimate,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// GetByID returns an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// ListByWorkflow returns the execution history of a workflow, newest first.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	return r.queryExecutions(ctx, query, workflowID)
}

// SaveCheckpoint persists durable state for a running execution. Terminal
// executions are never overwritten.
func (r *ExecutionRepository) SaveCheckpoint(ctx context.Context, id string, status models.ExecutionStatus, phase string, state json.RawMessage, waitDeadline *time.Time) error {
	query := `
		UPDATE workflow_executions
		SET status = $2, phase = $3, state = $4, wait_deadline = $5
		WHERE id = $1 AND status IN ('pending', 'running', 'waiting')
	`

	_, err := r.db.ExecContext(ctx, query, id, status, phase, []byte(state), waitDeadline)
	if err != nil {
		return fmt.Errorf("failed to save execution checkpoint: %w", err)
	}

	return nil
}

// MarkTerminal moves an execution into a terminal status. Already-terminal
// rows are left untouched so repeated completion events stay idempotent.
func (r *ExecutionRepository) MarkTerminal(ctx context.Context, id string, status models.ExecutionStatus, result map[string]any, errorMessage string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		UPDATE workflow_executions
		SET status = $2, result = $3, error_message = $4, wait_deadline = NULL, completed_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running', 'waiting')
	`

	_, err = r.db.ExecContext(ctx, query, id, status, resultJSON, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark execution terminal: %w", err)
	}

	return nil
}

// AddCost accumulates an activity cost estimate onto the execution row.
func (r *ExecutionRepository) AddCost(ctx context.Context, id string, cost float64) error {
	query := `UPDATE workflow_executions SET cost_estimate = cost_estimate + $2 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, cost)
	if err != nil {
		return fmt.Errorf("failed to add execution cost: %w", err)
	}

	return nil
}

// FindExpiredWaiting returns executions whose wait deadline has passed.
func (r *ExecutionRepository) FindExpiredWaiting(ctx context.Context, now time.Time) ([]*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE status = 'waiting' AND wait_deadline IS NOT NULL AND wait_deadline <= $1
		ORDER BY wait_deadline
	`

	return r.queryExecutions(ctx, query, now)
}

// DeleteOlderThan prunes terminal executions finished before the cutoff.
func (r *ExecutionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM workflow_executions
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowExecution, error) {
	var (
		execution             models.WorkflowExecution
		inputJSON, resultJSON []byte
		stateJSON             []byte
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TenantID,
		&execution.WorkflowType,
		&execution.Status,
		&execution.Phase,
		&inputJSON,
		&stateJSON,
		&execution.WaitDeadline,
		&resultJSON,
		&execution.ErrorMessage,
		&execution.CostEstimate,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if inputJSON != nil {
		err := json.Unmarshal(inputJSON, &execution.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	if resultJSON != nil {
		err := json.Unmarshal(resultJSON, &execution.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	execution.State = stateJSON

	return &execution, nil
}
