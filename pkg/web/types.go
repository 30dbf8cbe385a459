// Package web provides HTTP request and response types for the orchestration API.
package web

import "github.com/relayforge/relayforge/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new
// workflow. Config arrives untyped and is checked against the workflow
// config schema before it is persisted.
type CreateWorkflowRequest struct {
	Name        string                   `json:"name"        validate:"required,min=3"`
	Description string                   `json:"description"`
	Type        models.WorkflowType      `json:"type"        validate:"required"`
	Config      map[string]any           `json:"config,omitempty"`
	Triggers    []models.WorkflowTrigger `json:"triggers,omitempty"`
	HITLEnabled bool                     `json:"hitl_enabled"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
}

// UpdateWorkflowRequest represents a partial workflow update. Type and tenant
// ownership cannot be changed.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	HITLEnabled *bool          `json:"hitl_enabled,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RegisterTriggersRequest replaces a workflow's trigger list.
type RegisterTriggersRequest struct {
	Triggers []models.WorkflowTrigger `json:"triggers" validate:"required"`
}

// RunWorkflowRequest starts one execution with the given input.
type RunWorkflowRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

// SignalRequest delivers an external signal to a running execution.
type SignalRequest struct {
	Signal  string         `json:"signal"  validate:"required"`
	Payload map[string]any `json:"payload,omitempty"`
}

// TerminateRequest cancels a running execution.
type TerminateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// InstallConnectorRequest carries the raw configuration of a connector
// installation; sensitive keys are segregated server-side.
type InstallConnectorRequest struct {
	Config map[string]string `json:"config"`
}

// RotateCredentialsRequest stores a new credential bundle.
type RotateCredentialsRequest struct {
	Credentials map[string]string `json:"credentials" validate:"required"`
}

// OAuthCallbackRequest completes the authorization-code flow.
type OAuthCallbackRequest struct {
	Code        string `json:"code"        validate:"required"`
	State       string `json:"state"       validate:"required"`
	Connector   string `json:"connector"   validate:"required"`
	Tenant      string `json:"tenant"      validate:"required"`
	RedirectURI string `json:"redirectUri" validate:"required"`
}

// ToolCallRequest invokes one tool on a tenant-installed tool server.
type ToolCallRequest struct {
	Server   string         `json:"server"   validate:"required"`
	Tool     string         `json:"tool"     validate:"required"`
	Args     map[string]any `json:"args,omitempty"`
	SourceID string         `json:"source_id,omitempty"`
}
