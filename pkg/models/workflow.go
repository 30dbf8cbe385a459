// Package models defines the core domain models for multi-tenant workflow orchestration.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusRunning WorkflowStatus = "running" // Active, triggers fire
	WorkflowStatusPaused  WorkflowStatus = "paused"  // Inactive, triggers ignored
)

// WorkflowType identifies which durable definition a workflow executes.
type WorkflowType string

const (
	WorkflowTypeContentPublish  WorkflowType = "content_publish"
	WorkflowTypeSiteProvision   WorkflowType = "site_provision"
	WorkflowTypeSEOAudit        WorkflowType = "seo_audit"
	WorkflowTypeCompetitorIntel WorkflowType = "competitor_intel"
	WorkflowTypeMaintenance     WorkflowType = "maintenance"
)

// WorkflowConfig carries the per-workflow execution policy.
type WorkflowConfig struct {
	RetryCount            int    `json:"retry_count"`
	TimeoutSeconds        int    `json:"timeout_seconds"`
	Priority              string `json:"priority"`
	NotifyOnError         bool   `json:"notify_on_error"`
	RequireApproval       bool   `json:"require_approval"`
	ApprovalWindowSeconds int    `json:"approval_window_seconds"`
}

// RequiresApproval reports whether runs of this workflow hold for a human
// decision. Either the workflow-level HITL switch or the config flag opts in;
// a per-run input value overrides both.
func (w *Workflow) RequiresApproval() bool {
	return w.HITLEnabled || w.Config.RequireApproval
}

// Workflow is a tenant-owned automation. TenantID is set at creation and
// never changes afterwards. Workflows are soft-deleted only.
type Workflow struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"   validate:"required"`
	Name        string            `json:"name"        validate:"required,min=3"`
	Description string            `json:"description"`
	Type        WorkflowType      `json:"type"        validate:"required"`
	Status      WorkflowStatus    `json:"status"      validate:"required"`
	Config      WorkflowConfig    `json:"config"`
	Triggers    []WorkflowTrigger `json:"triggers"`
	LastRunID   string            `json:"last_run_id,omitempty"`
	SuccessRate float64           `json:"success_rate"`
	RunsToday   int               `json:"runs_today"`
	HITLEnabled bool              `json:"hitl_enabled"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   *time.Time        `json:"deleted_at,omitempty"`
}

// RetryPolicy returns the bounded retry settings for activity invocations.
func (w *Workflow) RetryPolicy() (attempts int, timeout time.Duration) {
	attempts = w.Config.RetryCount
	if attempts <= 0 {
		attempts = 3
	}

	timeout = time.Duration(w.Config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return attempts, timeout
}
