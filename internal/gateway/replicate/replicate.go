// Package replicate provides a Replicate backend for the LLM Gateway.
//
// This package implements gateway.Backend for Replicate's model hosting
// platform. It supports both public models (meta/llama-2-7b-chat) and private
// deployments.
//
// Replicate is an API for running open-source AI models. Models are specified
// using the format "owner/model-name" or "owner/model-name:version".
//
// Configuration:
//   - model: Required. Model identifier (e.g., "meta/llama-2-7b-chat")
//   - api_key: API token (or set REPLICATE_API_TOKEN env var)
//   - temperature: Sampling temperature (default: 1.0)
//   - top_p: Nucleus sampling (default: 1.0)
//   - repetition_penalty: Repetition penalty (default: 1.0)
//   - max_tokens: Maximum output tokens (default: model-specific)
//   - seed: Fallback random seed when a call carries no gateway.Request.Seed (default: 9)
//   - base_url: Custom API endpoint (for testing/proxies)
package replicate

import (
	"context"
	"fmt"
	"strings"

	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/registry"
	replicatego "github.com/replicate/replicate-go"
)

// envVarName is the environment variable name for the API token.
const envVarName = "REPLICATE_API_TOKEN"

func init() {
	gateway.Register("replicate.Replicate", NewReplicate)
}

// Replicate is a gateway.Backend that wraps the Replicate API.
type Replicate struct {
	client *replicatego.Client
	model  string

	temperature       float32
	topP              float32
	repetitionPenalty float32
	maxTokens         int
	seed              int
}

// NewReplicate creates a new Replicate backend from registry configuration.
func NewReplicate(m registry.Config) (gateway.Backend, error) {
	cfg, err := ConfigFromMap(m)
	if err != nil {
		return nil, err
	}
	return NewReplicateTyped(cfg)
}

// NewReplicateTyped creates a new Replicate backend from typed configuration.
func NewReplicateTyped(cfg Config) (*Replicate, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("replicate backend requires model")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("replicate backend requires api_key")
	}

	g := &Replicate{
		model:             cfg.Model,
		temperature:       cfg.Temperature,
		topP:              cfg.TopP,
		repetitionPenalty: cfg.RepetitionPenalty,
		maxTokens:         cfg.MaxTokens,
		seed:              cfg.Seed,
	}

	opts := []replicatego.ClientOption{
		replicatego.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, replicatego.WithBaseURL(cfg.BaseURL))
	}

	client, err := replicatego.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("replicate: failed to create client: %w", err)
	}
	g.client = client

	return g, nil
}

// NewReplicateWithOptions creates a new Replicate backend using functional options.
//
// Usage:
//
//	g, err := NewReplicateWithOptions(
//	    WithModel("meta/llama-2-7b-chat"),
//	    WithAPIKey("..."),
//	    WithTemperature(0.8),
//	)
func NewReplicateWithOptions(opts ...Option) (*Replicate, error) {
	cfg := ApplyOptions(DefaultConfig(), opts...)
	return NewReplicateTyped(cfg)
}

// Generate implements gateway.Backend. req.Seed overrides the configured
// default seed when non-zero, so the Expert's per-iteration seed
// (base_seed + i) reaches the model.
func (g *Replicate) Generate(ctx context.Context, req gateway.Request) (string, error) {
	if req.Prompt == "" {
		return "", fmt.Errorf("replicate: request has no prompt")
	}

	seed := g.seed
	if req.Seed != 0 {
		seed = int(req.Seed)
	}
	temperature := float64(g.temperature)
	if req.Temperature != 0 {
		temperature = req.Temperature
	}

	input := replicatego.PredictionInput{
		"prompt":             req.Prompt,
		"temperature":        temperature,
		"top_p":              float64(g.topP),
		"repetition_penalty": float64(g.repetitionPenalty),
		"seed":               seed,
	}
	if g.maxTokens > 0 {
		input["max_length"] = g.maxTokens
	}

	output, err := g.client.Run(ctx, g.model, input, nil)
	if err != nil {
		return "", g.wrapError(err)
	}
	return g.extractText(output), nil
}

// extractText converts Replicate output to a string.
// Output can be:
// - string: return as-is
// - []string: join all elements
// - []any: join string elements
func (g *Replicate) extractText(output replicatego.PredictionOutput) string {
	switch v := output.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, "")
	case []any:
		var parts []string
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	default:
		return fmt.Sprintf("%v", output)
	}
}

// wrapError wraps Replicate API errors with more context.
func (g *Replicate) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*replicatego.APIError); ok {
		return fmt.Errorf("replicate: API error (status %d): %w", apiErr.Status, err)
	}
	return fmt.Errorf("replicate: %w", err)
}

// Name returns the backend's fully qualified registry name.
func (g *Replicate) Name() string {
	return "replicate.Replicate"
}

// Description returns a human-readable description.
func (g *Replicate) Description() string {
	return "Replicate API backend for running open-source AI models (Llama, Mistral, etc.)"
}
