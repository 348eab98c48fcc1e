package bedrock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockBedrockClaudeResponse(content string) map[string]any {
	return map[string]any{
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": content},
		},
		"stop_reason": "end_turn",
	}
}

func TestNewBedrock_RequiresModel(t *testing.T) {
	_, err := NewBedrock(registry.Config{"region": "us-east-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "model")
}

func TestNewBedrock_RequiresRegion(t *testing.T) {
	_, err := NewBedrock(registry.Config{"model": "anthropic.claude-3-sonnet-20240229-v1:0"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "region")
}

func TestGenerate_Claude(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/invoke")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(mockBedrockClaudeResponse("Hello from Bedrock!"))
	}))
	defer server.Close()

	g, err := NewBedrock(registry.Config{
		"model":    "anthropic.claude-3-sonnet-20240229-v1:0",
		"region":   "us-east-1",
		"endpoint": server.URL,
	})
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), gateway.Request{Prompt: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hello from Bedrock!", text)
}

func TestGenerate_ClaudeWithSystemPrompt(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(mockBedrockClaudeResponse("ok"))
	}))
	defer server.Close()

	g, err := NewBedrock(registry.Config{
		"model":    "anthropic.claude-3-sonnet-20240229-v1:0",
		"region":   "us-east-1",
		"endpoint": server.URL,
	})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), gateway.Request{
		Prompt: "Hello",
		Extras: map[string]any{"system": "You are a puzzle solver."},
	})
	require.NoError(t, err)
	assert.Equal(t, "You are a puzzle solver.", captured["system"])
}

func TestGenerate_RateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ThrottlingException: Rate exceeded"})
	}))
	defer server.Close()

	g, err := NewBedrock(registry.Config{
		"model":    "anthropic.claude-3-sonnet-20240229-v1:0",
		"region":   "us-east-1",
		"endpoint": server.URL,
	})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), gateway.Request{Prompt: "Hello"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestGenerate_AuthErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "AccessDeniedException: Insufficient permissions"})
	}))
	defer server.Close()

	g, err := NewBedrock(registry.Config{
		"model":    "anthropic.claude-3-sonnet-20240229-v1:0",
		"region":   "us-east-1",
		"endpoint": server.URL,
	})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), gateway.Request{Prompt: "Hello"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "auth")
}

func TestGenerate_UnsupportedModelFamily(t *testing.T) {
	g, err := NewBedrock(registry.Config{"model": "cohere.command-r", "region": "us-east-1"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), gateway.Request{Prompt: "Hello"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported model family")
}

func TestNameAndDescription(t *testing.T) {
	backend, err := NewBedrock(registry.Config{"model": "anthropic.claude-3-sonnet-20240229-v1:0", "region": "us-east-1"})
	require.NoError(t, err)

	g, ok := backend.(*Bedrock)
	require.True(t, ok)
	assert.Equal(t, "bedrock.Bedrock", g.Name())
	assert.Contains(t, g.Description(), "Bedrock")
}

func TestRegistration(t *testing.T) {
	factory, ok := gateway.Registry.Get("bedrock.Bedrock")
	require.True(t, ok)
	_, err := factory(registry.Config{"model": "anthropic.claude-3-sonnet-20240229-v1:0", "region": "us-east-1"})
	assert.NoError(t, err)
}
