package tools

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/pkg/connectors"
	"github.com/relayforge/relayforge/pkg/graph"
	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/persistence"
)

// In-memory installation repository scoped to what the tool gateway needs.
type testInstallations struct {
	installations []*models.ConnectorInstallation
}

func (r *testInstallations) Save(ctx context.Context, installation *models.ConnectorInstallation) error {
	r.installations = append(r.installations, installation)

	return nil
}

func (r *testInstallations) GetByID(ctx context.Context, id string) (*models.ConnectorInstallation, error) {
	return nil, persistence.ErrInstallationNotFound
}

func (r *testInstallations) GetByTenantAndConnector(ctx context.Context, tenantID, connector string) (*models.ConnectorInstallation, error) {
	for _, installation := range r.installations {
		if installation.TenantID == tenantID && installation.Connector == connector {
			return installation, nil
		}
	}

	return nil, persistence.ErrInstallationNotFound
}

func (r *testInstallations) ListByTenant(ctx context.Context, tenantID string) ([]*models.ConnectorInstallation, error) {
	return r.installations, nil
}

func (r *testInstallations) ListActiveByKind(ctx context.Context, tenantID string, kind models.ConnectorKind) ([]*models.ConnectorInstallation, error) {
	active := make([]*models.ConnectorInstallation, 0)

	for _, installation := range r.installations {
		if installation.TenantID == tenantID && installation.Kind == kind && installation.Status == models.InstallationStatusConnected {
			active = append(active, installation)
		}
	}

	return active, nil
}

func (r *testInstallations) SetStatus(ctx context.Context, id string, status models.InstallationStatus) error {
	return nil
}

func (r *testInstallations) Delete(ctx context.Context, id string) error {
	return nil
}

// Scripted tool server client.
type testServerClient struct {
	tools      []Tool
	callResult *CallResult
	callErr    error
	calledTool string
	calledArgs map[string]any
}

func (c *testServerClient) ListTools(ctx context.Context) ([]Tool, error) {
	return c.tools, nil
}

func (c *testServerClient) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	c.calledTool = name
	c.calledArgs = args

	return c.callResult, c.callErr
}

func (c *testServerClient) Close() error { return nil }

type recordedEdges struct {
	edges []graph.Edge
}

func (r *recordedEdges) RecordEdge(ctx context.Context, edge graph.Edge) error {
	r.edges = append(r.edges, edge)

	return nil
}

func installation(tenantID, slug string, status models.InstallationStatus) *models.ConnectorInstallation {
	return &models.ConnectorInstallation{
		ID:        tenantID + "/" + slug,
		TenantID:  tenantID,
		Connector: slug,
		Kind:      models.ConnectorKindToolServer,
		Status:    status,
	}
}

func newTestToolGateway(clients map[string]*testServerClient, failing map[string]bool) (*Gateway, *testInstallations, *recordedEdges) {
	installations := &testInstallations{}
	edges := &recordedEdges{}

	factory := func(ctx context.Context, server, endpoint string, headers map[string]string) (ServerClient, error) {
		if failing[server] {
			return nil, errors.New("connection refused")
		}

		return clients[server], nil
	}

	connectorGateway := connectors.NewGateway(slog.Default(), connectors.NewRegistry(), installations, noSecrets{})
	gateway := NewGateway(slog.Default(), installations, connectorGateway, factory, edges)

	return gateway, installations, edges
}

// Secret store stub for installations without credentials.
type noSecrets struct{}

func (noSecrets) Store(ctx context.Context, path string, data map[string]string, metadata map[string]string) error {
	return nil
}

func (noSecrets) Get(ctx context.Context, path string) (map[string]string, error) {
	return nil, nil
}

func (noSecrets) Delete(ctx context.Context, path string) error { return nil }

func (noSecrets) List(ctx context.Context, prefix string) ([]string, error) { return nil, nil }

func (noSecrets) Rotate(ctx context.Context, path string, data map[string]string) error { return nil }

func TestGateway_ListToolsIsolatesFailingServers(t *testing.T) {
	ctx := context.Background()

	clients := map[string]*testServerClient{
		"crawler": {tools: []Tool{{Server: "crawler", Name: "fetch_page"}}},
		"search":  {tools: []Tool{{Server: "search", Name: "web_search"}, {Server: "search", Name: "news_search"}}},
	}

	gateway, installations, _ := newTestToolGateway(clients, map[string]bool{"broken": true})

	require.NoError(t, installations.Save(ctx, installation("T", "crawler", models.InstallationStatusConnected)))
	require.NoError(t, installations.Save(ctx, installation("T", "broken", models.InstallationStatusConnected)))
	require.NoError(t, installations.Save(ctx, installation("T", "search", models.InstallationStatusConnected)))
	require.NoError(t, installations.Save(ctx, installation("T", "inactive", models.InstallationStatusDisconnected)))

	tools, err := gateway.ListTools(ctx, "T")
	require.NoError(t, err)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}

	assert.ElementsMatch(t, []string{"fetch_page", "web_search", "news_search"}, names)
}

func TestGateway_CallToolUnknownServer(t *testing.T) {
	gateway, _, _ := newTestToolGateway(nil, nil)

	_, err := gateway.CallTool(context.Background(), "T", "missing", "anything", nil, "")
	require.Error(t, err)
	assert.True(t, IsToolServerNotFound(err))
}

func TestGateway_CallToolInactiveServer(t *testing.T) {
	ctx := context.Background()
	gateway, installations, _ := newTestToolGateway(nil, nil)

	require.NoError(t, installations.Save(ctx, installation("T", "crawler", models.InstallationStatusError)))

	_, err := gateway.CallTool(ctx, "T", "crawler", "fetch_page", nil, "")
	require.Error(t, err)
	assert.True(t, IsToolServerNotFound(err))
}

func TestGateway_CallToolRecordsFeedbackEdge(t *testing.T) {
	ctx := context.Background()

	client := &testServerClient{callResult: &CallResult{Content: "ok"}}
	gateway, installations, edges := newTestToolGateway(map[string]*testServerClient{"crawler": client}, nil)

	require.NoError(t, installations.Save(ctx, installation("T", "crawler", models.InstallationStatusConnected)))

	result, err := gateway.CallTool(ctx, "T", "crawler", "fetch_page", map[string]any{"url": "https://x.com"}, "article-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, "fetch_page", client.calledTool)

	require.Len(t, edges.edges, 1)
	assert.Equal(t, "article-1", edges.edges[0].SourceID)
	assert.Equal(t, "crawler", edges.edges[0].ToolServer)
	assert.True(t, edges.edges[0].Success)
}

func TestGateway_FailedCallStillRecordsEdgeAndPropagates(t *testing.T) {
	ctx := context.Background()

	client := &testServerClient{callErr: errors.New("tool exploded")}
	gateway, installations, edges := newTestToolGateway(map[string]*testServerClient{"crawler": client}, nil)

	require.NoError(t, installations.Save(ctx, installation("T", "crawler", models.InstallationStatusConnected)))

	_, err := gateway.CallTool(ctx, "T", "crawler", "fetch_page", nil, "article-1")
	require.Error(t, err)

	require.Len(t, edges.edges, 1)
	assert.False(t, edges.edges[0].Success)
}

func TestGateway_CallWithoutSourceSkipsFeedback(t *testing.T) {
	ctx := context.Background()

	client := &testServerClient{callResult: &CallResult{Content: "ok"}}
	gateway, installations, edges := newTestToolGateway(map[string]*testServerClient{"crawler": client}, nil)

	require.NoError(t, installations.Save(ctx, installation("T", "crawler", models.InstallationStatusConnected)))

	_, err := gateway.CallTool(ctx, "T", "crawler", "fetch_page", nil, "")
	require.NoError(t, err)
	assert.Empty(t, edges.edges)
}

func TestGateway_EndpointFallback(t *testing.T) {
	gateway, _, _ := newTestToolGateway(nil, nil)

	tests := []struct {
		name         string
		installation *models.ConnectorInstallation
		expected     string
	}{
		{
			name: "explicit override wins",
			installation: &models.ConnectorInstallation{
				Connector: "crawler",
				Endpoint:  "https://tools.tenant.example/mcp",
			},
			expected: "https://tools.tenant.example/mcp",
		},
		{
			name:         "service discovery convention",
			installation: &models.ConnectorInstallation{Connector: "crawler"},
			expected:     "http://crawler.tools.svc.cluster.local:8000/mcp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, err := gateway.resolveEndpoint(tt.installation)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, endpoint)
		})
	}
}
