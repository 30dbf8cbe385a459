package workflows

import (
	"encoding/json"
	"fmt"

	"github.com/relayforge/relayforge/pkg/models"
)

const (
	ActivityCreateSite        = "create_site"
	ActivityConfigureDNS      = "configure_dns"
	ActivityInstallConnectors = "install_connectors"
	ActivityVerifySite        = "verify_site"
)

// SiteProvisionDefinition provisions a new site end to end: create the site,
// point DNS at it, install the tenant's default connectors, then verify the
// site answers.
type SiteProvisionDefinition struct{}

func NewSiteProvisionDefinition() *SiteProvisionDefinition {
	return &SiteProvisionDefinition{}
}

func (d *SiteProvisionDefinition) Type() models.WorkflowType {
	return models.WorkflowTypeSiteProvision
}

func (d *SiteProvisionDefinition) NewState(input map[string]any) (State, error) {
	domain := inputString(input, "domain")
	if domain == "" {
		return nil, fmt.Errorf("site provision input requires a domain")
	}

	stages := []string{
		ActivityCreateSite,
		ActivityConfigureDNS,
		ActivityInstallConnectors,
		ActivityVerifySite,
	}

	return newPipelineState(stages, input), nil
}

func (d *SiteProvisionDefinition) DecodeState(data json.RawMessage) (State, error) {
	var state pipelineState

	err := json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to decode site provision state: %w", err)
	}

	return &state, nil
}
