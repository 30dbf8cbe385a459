package workflows

import (
	"encoding/json"
	"fmt"

	"github.com/relayforge/relayforge/pkg/models"
)

// JobType enumerates the maintenance jobs the worker's cron scheduler can
// dispatch. Jobs are a closed set; unknown names fail at start time instead
// of reaching a dispatch table.
type JobType string

const (
	JobRefreshTokens  JobType = "refresh_tokens"
	JobPruneExecution JobType = "prune_executions"
	JobReindexGraph   JobType = "reindex_graph"
	JobAuditIsolation JobType = "audit_isolation"
)

func ParseJobType(name string) (JobType, error) {
	switch JobType(name) {
	case JobRefreshTokens, JobPruneExecution, JobReindexGraph, JobAuditIsolation:
		return JobType(name), nil
	}

	return "", fmt.Errorf("unknown maintenance job: %s", name)
}

// Activity maps a job to the activity that performs it.
func (j JobType) Activity() string {
	return "maintenance." + string(j)
}

// MaintenanceState runs exactly one maintenance job per execution.
type MaintenanceState struct {
	CurrentPhase string         `json:"phase"`
	Job          JobType        `json:"job"`
	Params       map[string]any `json:"params,omitempty"`
	Summary      map[string]any `json:"summary,omitempty"`
}

const phaseRunningJob = "running_job"

func (s *MaintenanceState) Phase() string {
	return s.CurrentPhase
}

func (s *MaintenanceState) Next() Step {
	switch s.CurrentPhase {
	case phaseRunningJob:
		return ActivityStep(s.Job.Activity(), s.Params)
	case phaseCompleted:
		result := map[string]any{"status": phaseCompleted, "job": string(s.Job)}
		if s.Summary != nil {
			result["summary"] = s.Summary
		}

		return DoneStep(result)
	default:
		return DoneStep(map[string]any{"status": "failed", "reason": "unknown phase: " + s.CurrentPhase})
	}
}

func (s *MaintenanceState) Apply(signal Signal) error {
	if s.CurrentPhase != phaseRunningJob || signal.Name != s.Job.Activity() {
		return fmt.Errorf("unexpected signal %q in phase %s", signal.Name, s.CurrentPhase)
	}

	s.Summary = signal.Payload
	s.CurrentPhase = phaseCompleted

	return nil
}

func (s *MaintenanceState) Query(name string) (map[string]any, error) {
	if name != "status" {
		return nil, fmt.Errorf("unknown query: %s", name)
	}

	return map[string]any{
		"phase":   s.CurrentPhase,
		"job":     string(s.Job),
		"summary": s.Summary,
	}, nil
}

type MaintenanceDefinition struct{}

func NewMaintenanceDefinition() *MaintenanceDefinition {
	return &MaintenanceDefinition{}
}

func (d *MaintenanceDefinition) Type() models.WorkflowType {
	return models.WorkflowTypeMaintenance
}

func (d *MaintenanceDefinition) NewState(input map[string]any) (State, error) {
	job, err := ParseJobType(inputString(input, "job"))
	if err != nil {
		return nil, err
	}

	var params map[string]any
	if value, ok := inputValue(input, "params"); ok {
		params, _ = value.(map[string]any)
	}

	return &MaintenanceState{
		CurrentPhase: phaseRunningJob,
		Job:          job,
		Params:       params,
	}, nil
}

func (d *MaintenanceDefinition) DecodeState(data json.RawMessage) (State, error) {
	var state MaintenanceState

	err := json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to decode maintenance state: %w", err)
	}

	return &state, nil
}
