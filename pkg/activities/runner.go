// Package activities executes the side-effecting steps that workflow state
// machines request. All I/O of a workflow run passes through here.
package activities

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayforge/relayforge/pkg/agents"
	"github.com/relayforge/relayforge/pkg/audit"
	"github.com/relayforge/relayforge/pkg/connectors"
	"github.com/relayforge/relayforge/pkg/graph"
	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/tools"
	"github.com/relayforge/relayforge/pkg/workflows"
)

const defaultRetentionDays = 90

// Runner dispatches activity invocations to the gateway or service that
// performs them. It implements workflows.Activities.
type Runner struct {
	agents     *agents.Client
	connectors *connectors.Gateway
	oauth      *connectors.OAuthService
	tools      *tools.Gateway
	graph      *graph.Store
	auditor    *audit.Auditor
	executions persistence.ExecutionRepository
	logger     *slog.Logger
}

func NewRunner(
	agentClient *agents.Client,
	connectorGateway *connectors.Gateway,
	oauthService *connectors.OAuthService,
	toolGateway *tools.Gateway,
	graphStore *graph.Store,
	auditor *audit.Auditor,
	executions persistence.ExecutionRepository,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		agents:     agentClient,
		connectors: connectorGateway,
		oauth:      oauthService,
		tools:      toolGateway,
		graph:      graphStore,
		auditor:    auditor,
		executions: executions,
		logger:     logger.With("module", "activities"),
	}
}

func (r *Runner) Execute(ctx context.Context, tenantID, activity string, params map[string]any) (map[string]any, error) {
	switch activity {
	case workflows.ActivityGenerateDraft:
		return r.agentTask(ctx, "content", activity, params)
	case workflows.ActivitySchedulePost:
		return r.schedulePost(ctx, tenantID, params)
	case workflows.ActivityCrawlSite, workflows.ActivityAnalyzeFindings, workflows.ActivityCompileReport:
		return r.agentTask(ctx, "seo", activity, params)
	case workflows.ActivityFetchCompetitors, workflows.ActivityDiffOfferings, workflows.ActivitySummarizeIntel:
		return r.agentTask(ctx, "research", activity, params)
	case workflows.ActivityCreateSite, workflows.ActivityConfigureDNS, workflows.ActivityVerifySite:
		return r.agentTask(ctx, "provisioner", activity, params)
	case workflows.ActivityInstallConnectors:
		return r.installConnectors(ctx, tenantID, params)
	case workflows.JobRefreshTokens.Activity():
		return r.refreshTokens(ctx, tenantID)
	case workflows.JobPruneExecution.Activity():
		return r.pruneExecutions(ctx, params)
	case workflows.JobReindexGraph.Activity():
		return r.reindexGraph(ctx)
	case workflows.JobAuditIsolation.Activity():
		return r.auditor.Run(ctx).Summary(), nil
	}

	return nil, fmt.Errorf("unknown activity: %s", activity)
}

func (r *Runner) agentTask(ctx context.Context, agentType, task string, params map[string]any) (map[string]any, error) {
	return r.agents.Execute(ctx, agents.Request{
		AgentType: agentType,
		Task:      task,
		Payload:   params,
	})
}

// schedulePost publishes the approved draft through the tenant's CMS tool
// server. The target connector defaults to wordpress.
func (r *Runner) schedulePost(ctx context.Context, tenantID string, params map[string]any) (map[string]any, error) {
	server := "wordpress"
	if slug, ok := params["connector"].(string); ok && slug != "" {
		server = slug
	}

	result, err := r.tools.CallTool(ctx, tenantID, server, "schedule_post", params, "")
	if err != nil {
		return nil, err
	}

	if result.IsError {
		return nil, fmt.Errorf("schedule_post rejected by %s: %s", server, result.Content)
	}

	return map[string]any{"scheduled": true, "response": result.Content}, nil
}

func (r *Runner) installConnectors(ctx context.Context, tenantID string, params map[string]any) (map[string]any, error) {
	slugs, _ := params["connectors"].([]any)

	installed := make([]any, 0, len(slugs))

	for _, raw := range slugs {
		slug, ok := raw.(string)
		if !ok {
			continue
		}

		_, err := r.connectors.Install(ctx, tenantID, slug, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to install %s: %w", slug, err)
		}

		installed = append(installed, slug)
	}

	return map[string]any{"installed": installed}, nil
}

func (r *Runner) refreshTokens(ctx context.Context, tenantID string) (map[string]any, error) {
	refreshed, err := r.oauth.RefreshTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return map[string]any{"refreshed": refreshed}, nil
}

func (r *Runner) pruneExecutions(ctx context.Context, params map[string]any) (map[string]any, error) {
	retentionDays := defaultRetentionDays
	if days, ok := params["retention_days"].(float64); ok && days > 0 {
		retentionDays = int(days)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	pruned, err := r.executions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "Pruned terminal executions", "cutoff", cutoff, "pruned", pruned)

	return map[string]any{"pruned": pruned, "cutoff": cutoff.Format(time.RFC3339)}, nil
}

func (r *Runner) reindexGraph(ctx context.Context) (map[string]any, error) {
	rebuilt, err := r.graph.Reindex(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]any{"rebuilt": rebuilt}, nil
}
