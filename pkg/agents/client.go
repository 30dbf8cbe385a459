// Package agents calls the external LLM agent endpoint that executes leaf
// activities. The endpoint's output is treated as opaque.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultRequestTimeout = 120 * time.Second

// Request is the contract of the agent endpoint.
type Request struct {
	AgentType string         `json:"agentType"`
	Task      string         `json:"task"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(endpoint string, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger.With("module", "agents"),
	}
}

// Execute posts a task to the agent endpoint and returns its result. A
// non-JSON response body is wrapped as {"text": body} rather than rejected.
func (c *Client) Execute(ctx context.Context, request Request) (map[string]any, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode agent request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build agent request: %w", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("agent endpoint unreachable: %w", err)
	}

	defer func() {
		closeErr := response.Body.Close()
		if closeErr != nil {
			c.logger.ErrorContext(ctx, "Failed to close agent response body", "error", closeErr)
		}
	}()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent response: %w", err)
	}

	if response.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("agent endpoint returned %d: %s", response.StatusCode, responseBody)
	}

	var result map[string]any

	err = json.Unmarshal(responseBody, &result)
	if err != nil {
		return map[string]any{"text": string(responseBody)}, nil
	}

	return result, nil
}
