package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayforge/relayforge/pkg/connectors"
	"github.com/relayforge/relayforge/pkg/graph"
	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/persistence"
)

const defaultCallTimeout = 30 * time.Second

// FeedbackRecorder receives tool-interaction outcomes. Satisfied by
// graph.Store.
type FeedbackRecorder interface {
	RecordEdge(ctx context.Context, edge graph.Edge) error
}

// Gateway discovers and invokes tools on tenant-installed tool servers.
type Gateway struct {
	installations persistence.InstallationRepository
	connectors    *connectors.Gateway
	factory       ClientFactory
	feedback      FeedbackRecorder
	logger        *slog.Logger
	callTimeout   time.Duration
}

// NewGateway creates a tool gateway.
func NewGateway(logger *slog.Logger, installations persistence.InstallationRepository, connectorGateway *connectors.Gateway, factory ClientFactory, feedback FeedbackRecorder) *Gateway {
	return &Gateway{
		installations: installations,
		connectors:    connectorGateway,
		factory:       factory,
		feedback:      feedback,
		logger:        logger,
		callTimeout:   defaultCallTimeout,
	}
}

// ListTools aggregates the tool catalogs of every active tool server the
// tenant has installed. A failing server is logged and excluded; it never
// aborts discovery for the others.
func (g *Gateway) ListTools(ctx context.Context, tenantID string) ([]Tool, error) {
	installations, err := g.installations.ListActiveByKind(ctx, tenantID, models.ConnectorKindToolServer)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool installations: %w", err)
	}

	tools := make([]Tool, 0)

	for _, installation := range installations {
		serverTools, err := g.listServerTools(ctx, installation)
		if err != nil {
			g.logger.WarnContext(ctx, "skipping tool server, catalog fetch failed",
				"tenant_id", tenantID,
				"server", installation.Connector,
				"error", err)

			continue
		}

		tools = append(tools, serverTools...)
	}

	return tools, nil
}

// CallTool invokes a named tool on a tenant's tool server. When sourceID is
// set, the outcome is recorded as a knowledge-graph edge; that write is
// best-effort and never masks the call's own result.
func (g *Gateway) CallTool(ctx context.Context, tenantID, serverSlug, toolName string, args map[string]any, sourceID string) (*CallResult, error) {
	installation, err := g.installations.GetByTenantAndConnector(ctx, tenantID, serverSlug)
	if err != nil {
		if persistence.IsInstallationNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrToolServerNotFound, serverSlug)
		}

		return nil, fmt.Errorf("failed to resolve tool server: %w", err)
	}

	if installation.Status != models.InstallationStatusConnected {
		return nil, fmt.Errorf("%w: %s is not active", ErrToolServerNotFound, serverSlug)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	result, err := g.invoke(callCtx, installation, toolName, args)

	if sourceID != "" {
		g.recordFeedback(ctx, sourceID, serverSlug, err == nil && (result == nil || !result.IsError))
	}

	if err != nil {
		return nil, err
	}

	return result, nil
}

func (g *Gateway) listServerTools(ctx context.Context, installation *models.ConnectorInstallation) ([]Tool, error) {
	client, err := g.connect(ctx, installation)
	if err != nil {
		return nil, err
	}

	defer func() {
		err := client.Close()
		if err != nil {
			g.logger.WarnContext(ctx, "failed to close tool server client", "server", installation.Connector, "error", err)
		}
	}()

	return client.ListTools(ctx)
}

func (g *Gateway) invoke(ctx context.Context, installation *models.ConnectorInstallation, toolName string, args map[string]any) (*CallResult, error) {
	client, err := g.connect(ctx, installation)
	if err != nil {
		return nil, err
	}

	defer func() {
		err := client.Close()
		if err != nil {
			g.logger.WarnContext(ctx, "failed to close tool server client", "server", installation.Connector, "error", err)
		}
	}()

	return client.CallTool(ctx, toolName, args)
}

func (g *Gateway) connect(ctx context.Context, installation *models.ConnectorInstallation) (ServerClient, error) {
	endpoint, err := g.resolveEndpoint(installation)
	if err != nil {
		return nil, err
	}

	config, err := g.connectors.Resolve(ctx, installation)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)
	if token, exists := config["api_token"]; exists {
		headers["Authorization"] = "Bearer " + token
	}

	return g.factory(ctx, installation.Connector, endpoint, headers)
}

// resolveEndpoint picks the tool server address with a three-tier fallback:
// per-installation override, registry default, service-discovery convention.
func (g *Gateway) resolveEndpoint(installation *models.ConnectorInstallation) (string, error) {
	if installation.Endpoint != "" {
		return installation.Endpoint, nil
	}

	definition, err := g.connectors.Registry().Get(installation.Connector)
	if err == nil && definition.DefaultEndpoint != "" {
		return definition.DefaultEndpoint, nil
	}

	if installation.Connector == "" {
		return "", fmt.Errorf("%w: installation has no connector slug", ErrToolServerNotFound)
	}

	return fmt.Sprintf("http://%s.tools.svc.cluster.local:8000/mcp", installation.Connector), nil
}

func (g *Gateway) recordFeedback(ctx context.Context, sourceID, serverSlug string, success bool) {
	err := g.feedback.RecordEdge(ctx, graph.Edge{
		SourceID:   sourceID,
		ToolServer: serverSlug,
		Success:    success,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		g.logger.WarnContext(ctx, "failed to record tool feedback edge",
			"source_id", sourceID,
			"server", serverSlug,
			"error", err)
	}
}
