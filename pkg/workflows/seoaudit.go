package workflows

import (
	"encoding/json"
	"fmt"

	"github.com/relayforge/relayforge/pkg/models"
)

const (
	ActivityCrawlSite       = "crawl_site"
	ActivityAnalyzeFindings = "analyze_findings"
	ActivityCompileReport   = "compile_report"
)

// SEOAuditDefinition crawls a site, analyzes the findings, and compiles a
// report.
type SEOAuditDefinition struct{}

func NewSEOAuditDefinition() *SEOAuditDefinition {
	return &SEOAuditDefinition{}
}

func (d *SEOAuditDefinition) Type() models.WorkflowType {
	return models.WorkflowTypeSEOAudit
}

func (d *SEOAuditDefinition) NewState(input map[string]any) (State, error) {
	url := inputString(input, "url")
	if url == "" {
		return nil, fmt.Errorf("seo audit input requires a url")
	}

	stages := []string{
		ActivityCrawlSite,
		ActivityAnalyzeFindings,
		ActivityCompileReport,
	}

	return newPipelineState(stages, input), nil
}

func (d *SEOAuditDefinition) DecodeState(data json.RawMessage) (State, error) {
	var state pipelineState

	err := json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seo audit state: %w", err)
	}

	return &state, nil
}
