package models

// TriggerType classifies how a workflow is started.
type TriggerType string

const (
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeSchedule TriggerType = "schedule"
)

// WorkflowTrigger binds a workflow to an inbound event source. Webhook
// triggers match on an exact path; schedule triggers carry a cron spec.
type WorkflowTrigger struct {
	Type      TriggerType `json:"type"                 validate:"required"`
	Path      string      `json:"path,omitempty"`
	Cron      string      `json:"cron,omitempty"`
	SecretKey string      `json:"secret_key,omitempty"`
}

// TriggerMatch pairs a matched trigger with its owning workflow during
// webhook dispatch.
type TriggerMatch struct {
	Workflow *Workflow
	Trigger  WorkflowTrigger
}
