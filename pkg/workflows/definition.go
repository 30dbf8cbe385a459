// Package workflows contains the built-in workflow definitions and the
// deterministic state machine contract they implement.
package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/relayforge/relayforge/pkg/models"
)

// Signal is an external input delivered to a running execution. Activity
// results are fed back to the state machine as signals named after the
// activity, so replays see the same inputs in the same order.
type Signal struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// StepKind enumerates what an execution should do next.
type StepKind string

const (
	StepActivity StepKind = "activity"
	StepWait     StepKind = "wait"
	StepDone     StepKind = "done"
)

// Step is the next action a state machine requests from the engine.
type Step struct {
	Kind StepKind

	// Activity fields, set when Kind == StepActivity.
	Activity string
	Params   map[string]any

	// Timeout, set when Kind == StepWait. The engine parks the execution
	// until a signal arrives or the window elapses; state machines express
	// durations only, the engine owns the clock.
	Timeout time.Duration

	// Result, set when Kind == StepDone.
	Result map[string]any
}

func ActivityStep(name string, params map[string]any) Step {
	return Step{Kind: StepActivity, Activity: name, Params: params}
}

func WaitStep(timeout time.Duration) Step {
	return Step{Kind: StepWait, Timeout: timeout}
}

func DoneStep(result map[string]any) Step {
	return Step{Kind: StepDone, Result: result}
}

// State is the explicit, serializable state of one execution. Apply must be
// pure: no I/O, no clock reads, no randomness. All side effects happen in
// activities, whose results come back through Apply as signals.
type State interface {
	// Phase names the current position in the state machine, persisted on
	// the execution row for observability.
	Phase() string

	// Next returns the step the engine should take from this state.
	Next() Step

	// Apply transitions the state given a signal. Unknown signals return an
	// error and leave the state unchanged.
	Apply(signal Signal) error

	// Query answers read-only questions about the state.
	Query(name string) (map[string]any, error)
}

// Definition binds a workflow type to its state machine.
type Definition interface {
	Type() models.WorkflowType

	// NewState builds the initial state for a fresh execution.
	NewState(input map[string]any) (State, error)

	// DecodeState rebuilds a State from a persisted checkpoint.
	DecodeState(data json.RawMessage) (State, error)
}

// Activities is the side-effect boundary. Workers implement it; state
// machines only name activities and consume their results.
type Activities interface {
	Execute(ctx context.Context, tenantID, activity string, params map[string]any) (map[string]any, error)
}

// inputValue resolves a key from the run input. Webhook dispatches wrap the
// caller's body in a {source, path, payload} envelope, so a key absent at
// the top level falls back to the payload map.
func inputValue(input map[string]any, key string) (any, bool) {
	if value, ok := input[key]; ok {
		return value, true
	}

	if payload, ok := input["payload"].(map[string]any); ok {
		if value, ok := payload[key]; ok {
			return value, true
		}
	}

	return nil, false
}

// inputString resolves a string key from the run input or its payload
// envelope. A missing or non-string value yields "".
func inputString(input map[string]any, key string) string {
	value, _ := inputValue(input, key)
	text, _ := value.(string)

	return text
}

// Registry maps workflow types to their definitions.
type Registry struct {
	definitions map[models.WorkflowType]Definition
}

func NewRegistry() *Registry {
	return &Registry{definitions: make(map[models.WorkflowType]Definition)}
}

// NewDefaultRegistry returns a registry with all built-in workflow types.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewContentPublishDefinition())
	r.Register(NewSiteProvisionDefinition())
	r.Register(NewSEOAuditDefinition())
	r.Register(NewCompetitorIntelDefinition())
	r.Register(NewMaintenanceDefinition())

	return r
}

func (r *Registry) Register(def Definition) {
	r.definitions[def.Type()] = def
}

func (r *Registry) Get(workflowType models.WorkflowType) (Definition, error) {
	def, exists := r.definitions[workflowType]
	if !exists {
		return nil, fmt.Errorf("unknown workflow type: %s", workflowType)
	}

	return def, nil
}

func (r *Registry) Types() []models.WorkflowType {
	types := make([]models.WorkflowType, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}
