package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus represents the lifecycle state of a single workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowExecution is an append-only record of one run of a workflow.
// The State blob is the durable checkpoint of the definition's workflow-local
// variables; it is the only state that survives process restarts between
// activity invocations.
type WorkflowExecution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	TenantID     string          `json:"tenant_id"`
	WorkflowType WorkflowType    `json:"workflow_type"`
	Status       ExecutionStatus `json:"status"`
	Phase        string          `json:"phase,omitempty"`
	Input        map[string]any  `json:"input,omitempty"`
	State        json.RawMessage `json:"state,omitempty"`
	WaitDeadline *time.Time      `json:"wait_deadline,omitempty"`
	Result       map[string]any  `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CostEstimate float64         `json:"cost_estimate"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}
