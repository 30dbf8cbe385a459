package workflows

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/pkg/events"
)

func newContentPublishState(t *testing.T, input map[string]any) State {
	t.Helper()

	state, err := NewContentPublishDefinition().NewState(input)
	require.NoError(t, err)

	return state
}

func TestContentPublish_ApprovalPath(t *testing.T) {
	state := newContentPublishState(t, map[string]any{"topic": "spring sale"})

	step := state.Next()
	require.Equal(t, StepActivity, step.Kind)
	assert.Equal(t, ActivityGenerateDraft, step.Activity)
	assert.Equal(t, "spring sale", step.Params["topic"])

	err := state.Apply(Signal{Name: ActivityGenerateDraft, Payload: map[string]any{"draft": "Spring is here."}})
	require.NoError(t, err)
	assert.Equal(t, "awaiting_approval", state.Phase())

	step = state.Next()
	require.Equal(t, StepWait, step.Kind)
	assert.Equal(t, DefaultApprovalWindow, step.Timeout)

	err = state.Apply(Signal{Name: SignalApprovePost})
	require.NoError(t, err)
	assert.Equal(t, "scheduling", state.Phase())

	step = state.Next()
	require.Equal(t, StepActivity, step.Kind)
	assert.Equal(t, ActivitySchedulePost, step.Activity)
	assert.Equal(t, "Spring is here.", step.Params["draft"])

	err = state.Apply(Signal{Name: ActivitySchedulePost, Payload: map[string]any{"scheduled_for": "2026-09-01T09:00:00Z"}})
	require.NoError(t, err)

	step = state.Next()
	require.Equal(t, StepDone, step.Kind)
	assert.Equal(t, "completed", step.Result["status"])
	assert.Equal(t, "2026-09-01T09:00:00Z", step.Result["scheduled_for"])
}

func TestContentPublish_SkipsApprovalWhenDisabled(t *testing.T) {
	state := newContentPublishState(t, map[string]any{"topic": "weekly digest", "require_approval": false})

	err := state.Apply(Signal{Name: ActivityGenerateDraft, Payload: map[string]any{"draft": "d"}})
	require.NoError(t, err)

	assert.Equal(t, "scheduling", state.Phase())
}

func TestContentPublish_TimeoutResolvesToRevisionRequested(t *testing.T) {
	state := newContentPublishState(t, map[string]any{"topic": "launch post"})

	err := state.Apply(Signal{Name: ActivityGenerateDraft, Payload: map[string]any{"draft": "d"}})
	require.NoError(t, err)
	require.Equal(t, "awaiting_approval", state.Phase())

	err = state.Apply(Signal{Name: events.TimeoutSignal})
	require.NoError(t, err)

	step := state.Next()
	require.Equal(t, StepDone, step.Kind)
	assert.Equal(t, "revision_requested", step.Result["status"])
}

func TestContentPublish_RevisionRequestIsTerminalForVersion(t *testing.T) {
	state := newContentPublishState(t, map[string]any{"topic": "launch post"})

	err := state.Apply(Signal{Name: ActivityGenerateDraft, Payload: map[string]any{"draft": "d"}})
	require.NoError(t, err)

	err = state.Apply(Signal{Name: SignalRequestRevision, Payload: map[string]any{"notes": "tone it down"}})
	require.NoError(t, err)

	step := state.Next()
	require.Equal(t, StepDone, step.Kind)
	assert.Equal(t, "revision_requested", step.Result["status"])
	assert.Equal(t, "tone it down", step.Result["revision_notes"])
}

func TestContentPublish_LateTimeoutAfterApprovalIsRejected(t *testing.T) {
	state := newContentPublishState(t, map[string]any{"topic": "launch post"})

	err := state.Apply(Signal{Name: ActivityGenerateDraft, Payload: map[string]any{"draft": "d"}})
	require.NoError(t, err)

	err = state.Apply(Signal{Name: SignalApprovePost})
	require.NoError(t, err)

	err = state.Apply(Signal{Name: events.TimeoutSignal})
	require.Error(t, err)
	assert.Equal(t, "scheduling", state.Phase())
}

func TestContentPublish_Queries(t *testing.T) {
	state := newContentPublishState(t, map[string]any{"topic": "launch post"})

	err := state.Apply(Signal{Name: ActivityGenerateDraft, Payload: map[string]any{"draft": "the draft"}})
	require.NoError(t, err)

	status, err := state.Query("status")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_approval", status["phase"])
	assert.Equal(t, false, status["approved"])

	draft, err := state.Query("draft")
	require.NoError(t, err)
	assert.Equal(t, "the draft", draft["draft"])

	_, err = state.Query("unknown")
	require.Error(t, err)
}

func TestContentPublish_StateSurvivesCheckpointRoundTrip(t *testing.T) {
	definition := NewContentPublishDefinition()
	state := newContentPublishState(t, map[string]any{"topic": "launch post", "approval_window_seconds": float64(3600)})

	err := state.Apply(Signal{Name: ActivityGenerateDraft, Payload: map[string]any{"draft": "the draft"}})
	require.NoError(t, err)

	data, err := json.Marshal(state)
	require.NoError(t, err)

	decoded, err := definition.DecodeState(data)
	require.NoError(t, err)

	assert.Equal(t, "awaiting_approval", decoded.Phase())
	assert.Equal(t, time.Hour, decoded.Next().Timeout)
}

func TestContentPublish_ReadsInputNestedInWebhookPayload(t *testing.T) {
	state := newContentPublishState(t, map[string]any{
		"source": "webhook",
		"path":   "/publish",
		"payload": map[string]any{
			"topic":            "launch",
			"require_approval": false,
		},
	})

	step := state.Next()
	require.Equal(t, StepActivity, step.Kind)
	assert.Equal(t, "launch", step.Params["topic"])

	err := state.Apply(Signal{Name: ActivityGenerateDraft, Payload: map[string]any{"draft": "d"}})
	require.NoError(t, err)
	assert.Equal(t, "scheduling", state.Phase())
}

func TestContentPublish_TopLevelInputWinsOverPayload(t *testing.T) {
	state := newContentPublishState(t, map[string]any{
		"topic":   "standing topic",
		"payload": map[string]any{"topic": "body topic"},
	})

	step := state.Next()
	assert.Equal(t, "standing topic", step.Params["topic"])
}

func TestContentPublish_RequiresTopic(t *testing.T) {
	_, err := NewContentPublishDefinition().NewState(map[string]any{})
	require.Error(t, err)
}
