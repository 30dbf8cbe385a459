// Package tools provides the gateway that discovers and invokes tools
// exposed by tenant-installed external tool servers.
package tools

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrToolServerNotFound = errors.New("tool server not found")

func IsToolServerNotFound(err error) bool {
	return errors.Is(err, ErrToolServerNotFound)
}

// Tool describes one callable tool discovered on a tool server.
type Tool struct {
	Server      string          `json:"server"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// CallResult is the normalized outcome of a tool invocation. Backend-specific
// content shapes are flattened here so callers never probe response variants.
type CallResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// ServerClient is a connection to one tool server.
type ServerClient interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)
	Close() error
}

// ClientFactory opens a connection to a tool server endpoint. Headers carry
// the tenant's resolved credentials.
type ClientFactory func(ctx context.Context, server, endpoint string, headers map[string]string) (ServerClient, error)
