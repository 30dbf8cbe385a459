// Package events defines the event types that drive durable workflow
// execution across the event bus.
package events

import "time"

type EventType string

// Kafka topics.
const Topic = "relayforge.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionDispatchedEvent EventType = "execution.dispatched"
	ExecutionSignaledEvent   EventType = "execution.signaled"
	ExecutionCompletedEvent  EventType = "execution.completed"
	ExecutionFailedEvent     EventType = "execution.failed"
	ExecutionCancelledEvent  EventType = "execution.cancelled"
)

// TimeoutSignal is the reserved signal name delivered when a wait deadline
// elapses without an external signal.
const TimeoutSignal = "timeout"

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	TenantID    string    `json:"tenant_id"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id"`
	WorkerID    string    `json:"worker_id,omitempty"`
}

// ExecutionDispatched asks a worker to begin (or resume) running an
// execution from its latest checkpoint.
type ExecutionDispatched struct {
	BaseEvent

	WorkflowType string         `json:"workflow_type"`
	Input        map[string]any `json:"input,omitempty"`
}

func (e ExecutionDispatched) GetType() EventType {
	return ExecutionDispatchedEvent
}

// ExecutionSignaled delivers an external signal to a running execution.
// Signals to a single execution are observed in bus order.
type ExecutionSignaled struct {
	BaseEvent

	Signal  string         `json:"signal"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (e ExecutionSignaled) GetType() EventType {
	return ExecutionSignaledEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Result   map[string]any `json:"result,omitempty"`
	Duration time.Duration  `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}
