// Package openaicompat provides shared functions for OpenAI-compatible API
// backends. Many LLM providers offer OpenAI-compatible chat completion
// APIs; this package extracts the common request-building, error-wrapping,
// and rate-limit classification logic so each backend delegates to a single
// implementation instead of duplicating it.
package openaicompat

import (
	"context"
	"errors"
	"fmt"

	"github.com/praetorian-inc/arcsolver/pkg/registry"
	goopenai "github.com/sashabaranov/go-openai"
)

// ChatModels is the set of models that use the chat completions API. Shared
// between the openai backend and any other OpenAI-compatible provider.
var ChatModels = map[string]bool{
	"gpt-3.5-turbo":      true,
	"gpt-3.5-turbo-0125": true,
	"gpt-4":              true,
	"gpt-4-turbo":        true,
	"gpt-4o":             true,
	"gpt-4o-mini":        true,
	"o1-mini":            true,
	"o1-preview":         true,
	"o3-mini":            true,
}

// CompletionModels is the set of models that use the legacy completions API.
var CompletionModels = map[string]bool{
	"gpt-3.5-turbo-instruct": true,
	"davinci-002":            true,
	"babbage-002":            true,
}

// WrapError wraps OpenAI-compatible API errors with a provider-specific
// prefix. For rate limit errors (HTTP 429) it returns a *RateLimitError so
// isTransient (pkg/gateway) can detect them without the Gateway's retry
// consuming the Expert's fatal-retry budget.
func WrapError(providerName string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return &RateLimitError{Err: fmt.Errorf("%s: rate limit exceeded: %w", providerName, err)}
		case 400:
			return fmt.Errorf("%s: bad request: %w", providerName, err)
		case 401:
			return fmt.Errorf("%s: authentication error: %w", providerName, err)
		case 500, 502, 503, 504:
			return &RateLimitError{Err: fmt.Errorf("%s: server error: %w", providerName, err)}
		default:
			return fmt.Errorf("%s: API error: %w", providerName, err)
		}
	}

	return fmt.Errorf("%s: %w", providerName, err)
}

// GenerateChat performs a single-prompt, single-response OpenAI-compatible
// chat completion call, matching the Gateway's Backend.Generate contract.
func GenerateChat(ctx context.Context, client *goopenai.Client, providerName, model, prompt string, temperature float64, seed int64, maxTokens int, topP float32) (string, error) {
	chatReq := goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
		Seed:        intPtr(int(seed)),
	}
	if maxTokens > 0 {
		chatReq.MaxTokens = maxTokens
	}
	if topP != 0 {
		chatReq.TopP = topP
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", WrapError(providerName, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: response contained no choices", providerName)
	}
	return resp.Choices[0].Message.Content, nil
}

func intPtr(v int) *int { return &v }

// ProviderConfig defines the static configuration for an OpenAI-compatible
// provider backend built from NewGenerator.
type ProviderConfig struct {
	Name               string
	Description        string
	Provider           string
	DefaultBaseURL     string
	EnvVar             string
	DefaultTemperature float32
}

// NewGenerator builds a *CompatGenerator backend from registry config and
// provider settings, eliminating constructor duplication across
// OpenAI-compatible providers.
func NewGenerator(cfg registry.Config, pc ProviderConfig) (*CompatGenerator, error) {
	g := &CompatGenerator{provider: pc.Provider, name: pc.Name, description: pc.Description}

	model, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, fmt.Errorf("%s backend requires 'model' configuration", pc.Provider)
	}
	g.model = model

	apiKey, err := registry.GetAPIKeyWithEnv(cfg, pc.EnvVar, pc.Provider)
	if err != nil {
		return nil, err
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if baseURL := registry.GetString(cfg, "base_url", pc.DefaultBaseURL); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	g.client = goopenai.NewClientWithConfig(clientCfg)
	g.maxTokens = registry.GetInt(cfg, "max_tokens", 0)
	g.topP = registry.GetFloat32(cfg, "top_p", 0)

	return g, nil
}

// CompatGenerator is a ready-to-use Backend for OpenAI-compatible providers.
type CompatGenerator struct {
	client      *goopenai.Client
	provider    string
	name        string
	description string
	model       string
	maxTokens   int
	topP        float32
}

// Generate sends one chat completion. It takes plain parameters rather than
// gateway.Request, so CompatGenerator does not itself satisfy
// gateway.Backend (internal/gateway/openaicompat stays independent of
// pkg/gateway's types to avoid an import cycle; callers adapt
// gateway.Request into these plain parameters).
func (g *CompatGenerator) Generate(ctx context.Context, prompt string, temperature float64, seed int64) (string, error) {
	return GenerateChat(ctx, g.client, g.provider, g.model, prompt, temperature, seed, g.maxTokens, g.topP)
}

// Name returns the backend's fully qualified registry name.
func (g *CompatGenerator) Name() string { return g.name }

// Description returns a human-readable description.
func (g *CompatGenerator) Description() string { return g.description }
