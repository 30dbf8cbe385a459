package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpServerClient speaks MCP over streamable HTTP to a tenant's tool server.
type mcpServerClient struct {
	server string
	client *client.Client
}

// NewMCPClient is the production ClientFactory.
func NewMCPClient(ctx context.Context, server, endpoint string, headers map[string]string) (ServerClient, error) {
	options := make([]transport.StreamableHTTPCOption, 0, 1)
	if len(headers) > 0 {
		options = append(options, transport.WithHTTPHeaders(headers))
	}

	mcpClient, err := client.NewStreamableHttpClient(endpoint, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	err = mcpClient.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initRequest := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "relayforge",
				Version: "1.0.0",
			},
		},
	}

	_, err = mcpClient.Initialize(ctx, initRequest)
	if err != nil {
		_ = mcpClient.Close()

		return nil, fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	return &mcpServerClient{server: server, client: mcpClient}, nil
}

func (c *mcpServerClient) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))

	for _, tool := range result.Tools {
		tools = append(tools, Tool{
			Server:      c.server,
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.RawInputSchema,
		})
	}

	return tools, nil
}

func (c *mcpServerClient) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}

	result, err := c.client.CallTool(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	var content strings.Builder

	for _, item := range result.Content {
		if text, ok := mcp.AsTextContent(item); ok {
			content.WriteString(text.Text)
		}
	}

	return &CallResult{
		Content: content.String(),
		IsError: result.IsError,
	}, nil
}

func (c *mcpServerClient) Close() error {
	return c.client.Close()
}
