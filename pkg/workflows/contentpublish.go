package workflows

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/relayforge/relayforge/pkg/events"
	"github.com/relayforge/relayforge/pkg/models"
)

// DefaultApprovalWindow is how long an execution waits for a human decision
// before resolving to revision_requested.
const DefaultApprovalWindow = 7 * 24 * time.Hour

const (
	ActivityGenerateDraft = "generate_draft"
	ActivitySchedulePost  = "schedule_post"
)

const (
	SignalApprovePost     = "approve_post"
	SignalRequestRevision = "request_revision"
)

const (
	phaseGenerating        = "generating"
	phaseAwaitingApproval  = "awaiting_approval"
	phaseRevising          = "revising"
	phaseScheduling        = "scheduling"
	phaseCompleted         = "completed"
	phaseRevisionRequested = "revision_requested"
)

// ContentPublishState drives the content-publication workflow: a draft is
// generated, optionally held for human approval, then scheduled. A timeout
// or a revision request ends this version in revision_requested rather than
// hanging.
type ContentPublishState struct {
	CurrentPhase    string        `json:"phase"`
	Topic           string        `json:"topic"`
	RequireApproval bool          `json:"require_approval"`
	ApprovalWindow  time.Duration `json:"approval_window"`
	Draft           string        `json:"draft,omitempty"`
	Approved        bool          `json:"approved"`
	RevisionNotes   string        `json:"revision_notes,omitempty"`
	ScheduledFor    string        `json:"scheduled_for,omitempty"`
}

func (s *ContentPublishState) Phase() string {
	return s.CurrentPhase
}

func (s *ContentPublishState) Next() Step {
	switch s.CurrentPhase {
	case phaseGenerating:
		return ActivityStep(ActivityGenerateDraft, map[string]any{"topic": s.Topic})
	case phaseAwaitingApproval:
		return WaitStep(s.ApprovalWindow)
	case phaseScheduling:
		return ActivityStep(ActivitySchedulePost, map[string]any{"draft": s.Draft})
	case phaseRevising:
		return DoneStep(map[string]any{
			"status":         phaseRevisionRequested,
			"revision_notes": s.RevisionNotes,
		})
	case phaseRevisionRequested:
		return DoneStep(map[string]any{
			"status": phaseRevisionRequested,
			"reason": "approval window elapsed",
		})
	case phaseCompleted:
		return DoneStep(map[string]any{
			"status":        phaseCompleted,
			"draft":         s.Draft,
			"scheduled_for": s.ScheduledFor,
		})
	default:
		return DoneStep(map[string]any{"status": "failed", "reason": "unknown phase: " + s.CurrentPhase})
	}
}

func (s *ContentPublishState) Apply(signal Signal) error {
	switch s.CurrentPhase {
	case phaseGenerating:
		if signal.Name != ActivityGenerateDraft {
			return fmt.Errorf("unexpected signal %q in phase %s", signal.Name, s.CurrentPhase)
		}

		s.Draft, _ = signal.Payload["draft"].(string)
		if s.RequireApproval {
			s.CurrentPhase = phaseAwaitingApproval
		} else {
			s.CurrentPhase = phaseScheduling
		}

		return nil
	case phaseAwaitingApproval:
		switch signal.Name {
		case SignalApprovePost:
			s.Approved = true
			s.CurrentPhase = phaseScheduling

			return nil
		case SignalRequestRevision:
			s.RevisionNotes, _ = signal.Payload["notes"].(string)
			s.CurrentPhase = phaseRevising

			return nil
		case events.TimeoutSignal:
			s.CurrentPhase = phaseRevisionRequested

			return nil
		}

		return fmt.Errorf("unexpected signal %q in phase %s", signal.Name, s.CurrentPhase)
	case phaseScheduling:
		if signal.Name != ActivitySchedulePost {
			return fmt.Errorf("unexpected signal %q in phase %s", signal.Name, s.CurrentPhase)
		}

		s.ScheduledFor, _ = signal.Payload["scheduled_for"].(string)
		s.CurrentPhase = phaseCompleted

		return nil
	}

	return fmt.Errorf("unexpected signal %q in phase %s", signal.Name, s.CurrentPhase)
}

func (s *ContentPublishState) Query(name string) (map[string]any, error) {
	switch name {
	case "status":
		return map[string]any{
			"phase":          s.CurrentPhase,
			"approved":       s.Approved,
			"revision_notes": s.RevisionNotes,
		}, nil
	case "draft":
		return map[string]any{"draft": s.Draft}, nil
	}

	return nil, fmt.Errorf("unknown query: %s", name)
}

type ContentPublishDefinition struct{}

func NewContentPublishDefinition() *ContentPublishDefinition {
	return &ContentPublishDefinition{}
}

func (d *ContentPublishDefinition) Type() models.WorkflowType {
	return models.WorkflowTypeContentPublish
}

func (d *ContentPublishDefinition) NewState(input map[string]any) (State, error) {
	topic := inputString(input, "topic")
	if topic == "" {
		return nil, fmt.Errorf("content publish input requires a topic")
	}

	requireApproval := true
	if value, ok := inputValue(input, "require_approval"); ok {
		if enabled, ok := value.(bool); ok {
			requireApproval = enabled
		}
	}

	window := DefaultApprovalWindow
	if value, ok := inputValue(input, "approval_window_seconds"); ok {
		if seconds, ok := value.(float64); ok && seconds > 0 {
			window = time.Duration(seconds) * time.Second
		}
	}

	return &ContentPublishState{
		CurrentPhase:    phaseGenerating,
		Topic:           topic,
		RequireApproval: requireApproval,
		ApprovalWindow:  window,
	}, nil
}

func (d *ContentPublishDefinition) DecodeState(data json.RawMessage) (State, error) {
	var state ContentPublishState

	err := json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content publish state: %w", err)
	}

	return &state, nil
}
