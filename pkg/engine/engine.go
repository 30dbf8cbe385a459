// Package engine provides durable workflow execution on top of the event bus
// and the execution checkpoint store.
package engine

import (
	"context"

	"github.com/relayforge/relayforge/pkg/models"
)

// Engine is the only surface the rest of the system uses to drive durable
// executions. Failures are returned to the caller; retry policy belongs to
// the workflow definition, not to this adapter.
type Engine interface {
	// Start durably begins an execution of the workflow and returns its run id.
	Start(ctx context.Context, workflow *models.Workflow, input map[string]any) (string, error)

	// Signal delivers an external signal to a running execution. Signals to a
	// single execution are observed in the order they were published.
	Signal(ctx context.Context, executionID, signal string, payload map[string]any) error

	// Query answers a read-only question from the latest durable checkpoint.
	Query(ctx context.Context, executionID, query string) (map[string]any, error)

	// Describe returns the execution record as currently persisted.
	Describe(ctx context.Context, executionID string) (*models.WorkflowExecution, error)

	// Terminate immediately moves the execution to cancelled, skipping any
	// remaining workflow logic.
	Terminate(ctx context.Context, executionID, reason string) error
}
