package workflows

import (
	"fmt"
	"maps"
)

// pipelineState is the shared shape of the linear workflow definitions: a
// fixed sequence of activities where a failed step aborts the whole run.
// Each activity receives the original input plus every prior stage's result.
type pipelineState struct {
	Stages  []string                  `json:"stages"`
	Index   int                       `json:"index"`
	Input   map[string]any            `json:"input,omitempty"`
	Results map[string]map[string]any `json:"results,omitempty"`
}

func newPipelineState(stages []string, input map[string]any) *pipelineState {
	return &pipelineState{
		Stages:  stages,
		Input:   input,
		Results: make(map[string]map[string]any),
	}
}

func (s *pipelineState) Phase() string {
	if s.Index >= len(s.Stages) {
		return phaseCompleted
	}

	return s.Stages[s.Index]
}

func (s *pipelineState) Next() Step {
	if s.Index >= len(s.Stages) {
		result := map[string]any{"status": phaseCompleted}
		for stage, out := range s.Results {
			result[stage] = out
		}

		return DoneStep(result)
	}

	params := make(map[string]any, len(s.Input)+len(s.Results))
	maps.Copy(params, s.Input)

	for stage, out := range s.Results {
		params[stage] = out
	}

	return ActivityStep(s.Stages[s.Index], params)
}

func (s *pipelineState) Apply(signal Signal) error {
	if s.Index >= len(s.Stages) {
		return fmt.Errorf("unexpected signal %q after completion", signal.Name)
	}

	if signal.Name != s.Stages[s.Index] {
		return fmt.Errorf("unexpected signal %q in phase %s", signal.Name, s.Stages[s.Index])
	}

	if s.Results == nil {
		s.Results = make(map[string]map[string]any)
	}

	s.Results[signal.Name] = signal.Payload
	s.Index++

	return nil
}

func (s *pipelineState) Query(name string) (map[string]any, error) {
	switch name {
	case "status":
		return map[string]any{
			"phase":     s.Phase(),
			"completed": s.Index,
			"total":     len(s.Stages),
		}, nil
	case "results":
		results := make(map[string]any, len(s.Results))
		for stage, out := range s.Results {
			results[stage] = out
		}

		return results, nil
	}

	return nil, fmt.Errorf("unknown query: %s", name)
}
