package workflows

import (
	"encoding/json"
	"fmt"

	"github.com/relayforge/relayforge/pkg/models"
)

const (
	ActivityFetchCompetitors = "fetch_competitors"
	ActivityDiffOfferings    = "diff_offerings"
	ActivitySummarizeIntel   = "summarize_intel"
)

// CompetitorIntelDefinition gathers competitor data, diffs it against the
// tenant's own offerings, and summarizes the differences.
type CompetitorIntelDefinition struct{}

func NewCompetitorIntelDefinition() *CompetitorIntelDefinition {
	return &CompetitorIntelDefinition{}
}

func (d *CompetitorIntelDefinition) Type() models.WorkflowType {
	return models.WorkflowTypeCompetitorIntel
}

func (d *CompetitorIntelDefinition) NewState(input map[string]any) (State, error) {
	stages := []string{
		ActivityFetchCompetitors,
		ActivityDiffOfferings,
		ActivitySummarizeIntel,
	}

	return newPipelineState(stages, input), nil
}

func (d *CompetitorIntelDefinition) DecodeState(data json.RawMessage) (State, error) {
	var state pipelineState

	err := json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to decode competitor intel state: %w", err)
	}

	return &state, nil
}
