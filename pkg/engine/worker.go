package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relayforge/relayforge/pkg/eventbus"
	"github.com/relayforge/relayforge/pkg/events"
	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/otelhelper"
	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/workflows"
)

// Worker consumes execution events and advances state machines step by step,
// checkpointing after every transition so a crashed worker can be replaced
// without losing progress.
type Worker struct {
	workerID    string
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	registry    *workflows.Registry
	activities  workflows.Activities
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewWorker(
	workerID string,
	p persistence.Persistence,
	bus eventbus.EventBus,
	registry *workflows.Registry,
	activities workflows.Activities,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		workerID:    workerID,
		persistence: p,
		eventBus:    bus,
		registry:    registry,
		activities:  activities,
		tracer:      tracer,
		logger:      logger.With("module", "worker", "worker_id", workerID),
	}
}

// Start registers the worker's event handlers and begins consuming.
func (w *Worker) Start(ctx context.Context) error {
	err := w.eventBus.Handle(events.ExecutionDispatchedEvent, w.handleDispatched)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.ExecutionSignaledEvent, w.handleSignaled)
	if err != nil {
		return err
	}

	return w.eventBus.Subscribe(ctx)
}

func (w *Worker) handleDispatched(ctx context.Context, event any) error {
	dispatched, ok := event.(*events.ExecutionDispatched)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", events.ExecutionDispatchedEvent)
	}

	execution, state, err := w.load(ctx, dispatched.ExecutionID)
	if err != nil {
		return err
	}

	if execution == nil {
		return nil
	}

	return w.advance(ctx, execution, state)
}

func (w *Worker) handleSignaled(ctx context.Context, event any) error {
	signaled, ok := event.(*events.ExecutionSignaled)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", events.ExecutionSignaledEvent)
	}

	execution, state, err := w.load(ctx, signaled.ExecutionID)
	if err != nil {
		return err
	}

	if execution == nil {
		return nil
	}

	err = state.Apply(workflows.Signal{Name: signaled.Signal, Payload: signaled.Payload})
	if err != nil {
		// A late or duplicate signal (including a timeout racing a human
		// decision) is dropped, not treated as an execution failure.
		w.logger.WarnContext(ctx, "Ignoring signal",
			"execution_id", signaled.ExecutionID, "signal", signaled.Signal, "error", err)

		return nil
	}

	err = w.checkpoint(ctx, execution, state, models.ExecutionStatusRunning, nil)
	if err != nil {
		return err
	}

	return w.advance(ctx, execution, state)
}

// load fetches an execution and decodes its checkpoint. Terminal executions
// return nil without error so stale events are acked and dropped.
func (w *Worker) load(ctx context.Context, executionID string) (*models.WorkflowExecution, workflows.State, error) {
	execution, err := w.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			w.logger.WarnContext(ctx, "Dropping event for unknown execution", "execution_id", executionID)

			return nil, nil, nil
		}

		return nil, nil, err
	}

	if execution.Status.IsTerminal() {
		return nil, nil, nil
	}

	definition, err := w.registry.Get(execution.WorkflowType)
	if err != nil {
		return nil, nil, err
	}

	state, err := definition.DecodeState(execution.State)
	if err != nil {
		return nil, nil, err
	}

	return execution, state, nil
}

// advance runs the state machine until it parks on a wait, completes, or
// fails. Every transition is checkpointed before the next step begins.
func (w *Worker) advance(ctx context.Context, execution *models.WorkflowExecution, state workflows.State) error {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.advance",
		attribute.String(otelhelper.TenantIDKey, execution.TenantID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkerIDKey, w.workerID),
	)
	defer span.End()

	attempts, timeout := w.retryPolicy(ctx, execution)

	for {
		step := state.Next()

		switch step.Kind {
		case workflows.StepActivity:
			err := w.checkpoint(ctx, execution, state, models.ExecutionStatusRunning, nil)
			if err != nil {
				return err
			}

			result, err := w.runActivity(ctx, execution, step, attempts, timeout)
			if err != nil {
				otelhelper.SetError(span, err)

				return w.fail(ctx, execution, fmt.Sprintf("activity %s: %v", step.Activity, err))
			}

			err = state.Apply(workflows.Signal{Name: step.Activity, Payload: result})
			if err != nil {
				otelhelper.SetError(span, err)

				return w.fail(ctx, execution, err.Error())
			}

			err = w.checkpoint(ctx, execution, state, models.ExecutionStatusRunning, nil)
			if err != nil {
				return err
			}
		case workflows.StepWait:
			deadline := time.Now().UTC().Add(step.Timeout)

			return w.checkpoint(ctx, execution, state, models.ExecutionStatusWaiting, &deadline)
		case workflows.StepDone:
			return w.complete(ctx, execution, step.Result)
		default:
			return w.fail(ctx, execution, fmt.Sprintf("unknown step kind: %s", step.Kind))
		}
	}
}

// runActivity invokes one activity with a bounded timeout and capped
// exponential backoff. Exhausting the attempts fails the whole run.
func (w *Worker) runActivity(ctx context.Context, execution *models.WorkflowExecution, step workflows.Step, attempts int, timeout time.Duration) (map[string]any, error) {
	var result map[string]any

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var err error

		result, err = w.activities.Execute(attemptCtx, execution.TenantID, step.Activity, step.Params)

		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts-1)), ctx)

	err := backoff.Retry(operation, policy)
	if err != nil {
		return nil, err
	}

	if cost, ok := result["cost_estimate"].(float64); ok && cost > 0 {
		costErr := w.persistence.ExecutionRepository().AddCost(ctx, execution.ID, cost)
		if costErr != nil {
			w.logger.ErrorContext(ctx, "Failed to record activity cost", "execution_id", execution.ID, "error", costErr)
		}
	}

	return result, nil
}

func (w *Worker) retryPolicy(ctx context.Context, execution *models.WorkflowExecution) (int, time.Duration) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		w.logger.WarnContext(ctx, "Falling back to default retry policy", "execution_id", execution.ID, "error", err)

		workflow = &models.Workflow{}
	}

	return workflow.RetryPolicy()
}

func (w *Worker) checkpoint(ctx context.Context, execution *models.WorkflowExecution, state workflows.State, status models.ExecutionStatus, waitDeadline *time.Time) error {
	stateData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint state: %w", err)
	}

	execution.State = stateData
	execution.Status = status
	execution.Phase = state.Phase()
	execution.WaitDeadline = waitDeadline

	return w.persistence.ExecutionRepository().SaveCheckpoint(ctx, execution.ID, status, state.Phase(), stateData, waitDeadline)
}

func (w *Worker) complete(ctx context.Context, execution *models.WorkflowExecution, result map[string]any) error {
	err := w.persistence.ExecutionRepository().MarkTerminal(ctx, execution.ID, models.ExecutionStatusCompleted, result, "")
	if err != nil {
		return err
	}

	event := events.ExecutionCompleted{
		BaseEvent: w.baseEvent(events.ExecutionCompletedEvent, execution),
		Result:    result,
		Duration:  time.Since(execution.StartedAt),
	}

	err = w.eventBus.Publish(ctx, execution.ID, event)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish completion event", "execution_id", execution.ID, "error", err)
	}

	w.recordOutcome(ctx, execution, true)

	w.logger.InfoContext(ctx, "Execution completed", "execution_id", execution.ID, "workflow_id", execution.WorkflowID)

	return nil
}

func (w *Worker) fail(ctx context.Context, execution *models.WorkflowExecution, message string) error {
	err := w.persistence.ExecutionRepository().MarkTerminal(ctx, execution.ID, models.ExecutionStatusFailed, nil, message)
	if err != nil {
		return err
	}

	event := events.ExecutionFailed{
		BaseEvent: w.baseEvent(events.ExecutionFailedEvent, execution),
		Error:     message,
		Duration:  time.Since(execution.StartedAt),
	}

	err = w.eventBus.Publish(ctx, execution.ID, event)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to publish failure event", "execution_id", execution.ID, "error", err)
	}

	w.recordOutcome(ctx, execution, false)

	w.logger.ErrorContext(ctx, "Execution failed", "execution_id", execution.ID, "workflow_id", execution.WorkflowID, "error", message)

	return nil
}

// recordOutcome folds the terminal status into the workflow's success rate.
// Bookkeeping failures are logged, never surfaced to the execution path.
func (w *Worker) recordOutcome(ctx context.Context, execution *models.WorkflowExecution, success bool) {
	err := w.persistence.WorkflowRepository().RecordOutcome(ctx, execution.WorkflowID, success)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to record workflow outcome",
			"workflow_id", execution.WorkflowID, "execution_id", execution.ID, "error", err)
	}
}

func (w *Worker) baseEvent(eventType events.EventType, execution *models.WorkflowExecution) events.BaseEvent {
	return events.BaseEvent{
		ID:          w.eventBus.GenerateID(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		TenantID:    execution.TenantID,
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		WorkerID:    w.workerID,
	}
}
