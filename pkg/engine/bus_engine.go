package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/relayforge/relayforge/pkg/eventbus"
	"github.com/relayforge/relayforge/pkg/events"
	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/workflows"
)

// BusEngine implements Engine over the execution checkpoint store and the
// event bus. Workers pick up published events and advance executions; this
// adapter never runs workflow logic itself.
type BusEngine struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	registry    *workflows.Registry
	logger      *slog.Logger
}

func NewBusEngine(p persistence.Persistence, bus eventbus.EventBus, registry *workflows.Registry, logger *slog.Logger) *BusEngine {
	return &BusEngine{
		persistence: p,
		eventBus:    bus,
		registry:    registry,
		logger:      logger.With("module", "engine"),
	}
}

func (e *BusEngine) Start(ctx context.Context, workflow *models.Workflow, input map[string]any) (string, error) {
	definition, err := e.registry.Get(workflow.Type)
	if err != nil {
		return "", err
	}

	input = definitionInput(workflow, input)

	state, err := definition.NewState(input)
	if err != nil {
		return "", fmt.Errorf("failed to build initial state: %w", err)
	}

	stateData, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode initial state: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate execution id: %w", err)
	}

	execution := &models.WorkflowExecution{
		ID:           id.String(),
		WorkflowID:   workflow.ID,
		TenantID:     workflow.TenantID,
		WorkflowType: workflow.Type,
		Status:       models.ExecutionStatusPending,
		Phase:        state.Phase(),
		Input:        input,
		State:        stateData,
		StartedAt:    time.Now().UTC(),
	}

	err = e.persistence.ExecutionRepository().Create(ctx, execution)
	if err != nil {
		return "", fmt.Errorf("failed to persist execution: %w", err)
	}

	err = e.persistence.WorkflowRepository().RecordRun(ctx, workflow.ID, execution.ID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to record workflow run", "workflow_id", workflow.ID, "error", err)
	}

	event := events.ExecutionDispatched{
		BaseEvent:    e.baseEvent(events.ExecutionDispatchedEvent, execution),
		WorkflowType: string(workflow.Type),
		Input:        input,
	}

	err = e.eventBus.Publish(ctx, execution.ID, event)
	if err != nil {
		return "", fmt.Errorf("failed to dispatch execution: %w", err)
	}

	return execution.ID, nil
}

// definitionInput merges the workflow's standing approval policy into the
// per-run input. Explicit per-run values win over workflow configuration.
func definitionInput(workflow *models.Workflow, input map[string]any) map[string]any {
	merged := make(map[string]any, len(input)+2)
	maps.Copy(merged, input)

	if _, ok := merged["require_approval"]; !ok {
		merged["require_approval"] = workflow.RequiresApproval()
	}

	if _, ok := merged["approval_window_seconds"]; !ok && workflow.Config.ApprovalWindowSeconds > 0 {
		merged["approval_window_seconds"] = float64(workflow.Config.ApprovalWindowSeconds)
	}

	return merged
}

func (e *BusEngine) Signal(ctx context.Context, executionID, signal string, payload map[string]any) error {
	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return fmt.Errorf("execution %s is already %s", executionID, execution.Status)
	}

	event := events.ExecutionSignaled{
		BaseEvent: e.baseEvent(events.ExecutionSignaledEvent, execution),
		Signal:    signal,
		Payload:   payload,
	}

	return e.eventBus.Publish(ctx, executionID, event)
}

func (e *BusEngine) Query(ctx context.Context, executionID, query string) (map[string]any, error) {
	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	definition, err := e.registry.Get(execution.WorkflowType)
	if err != nil {
		return nil, err
	}

	state, err := definition.DecodeState(execution.State)
	if err != nil {
		return nil, err
	}

	return state.Query(query)
}

func (e *BusEngine) Describe(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return e.persistence.ExecutionRepository().GetByID(ctx, executionID)
}

func (e *BusEngine) Terminate(ctx context.Context, executionID, reason string) error {
	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		return nil
	}

	err = e.persistence.ExecutionRepository().MarkTerminal(ctx, executionID, models.ExecutionStatusCancelled, nil, reason)
	if err != nil {
		return fmt.Errorf("failed to cancel execution: %w", err)
	}

	event := events.ExecutionCancelled{
		BaseEvent: e.baseEvent(events.ExecutionCancelledEvent, execution),
		Reason:    reason,
	}

	err = e.eventBus.Publish(ctx, executionID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish cancellation event", "execution_id", executionID, "error", err)
	}

	return nil
}

func (e *BusEngine) baseEvent(eventType events.EventType, execution *models.WorkflowExecution) events.BaseEvent {
	return events.BaseEvent{
		ID:          e.eventBus.GenerateID(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		TenantID:    execution.TenantID,
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
	}
}
