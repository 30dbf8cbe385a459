package agents

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ExecuteDecodesJSONResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "content", request.AgentType)
		assert.Equal(t, "generate_draft", request.Task)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"draft": "hello"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, slog.Default())

	result, err := client.Execute(context.Background(), Request{
		AgentType: "content",
		Task:      "generate_draft",
		Payload:   map[string]any{"topic": "launch"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", result["draft"])
}

func TestClient_ExecuteWrapsPlainTextResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain answer"))
	}))
	defer server.Close()

	client := NewClient(server.URL, slog.Default())

	result, err := client.Execute(context.Background(), Request{AgentType: "content", Task: "t"})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", result["text"])
}

func TestClient_ExecuteSurfacesEndpointErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, slog.Default())

	_, err := client.Execute(context.Background(), Request{AgentType: "content", Task: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
