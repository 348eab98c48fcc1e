// Package bedrock provides an AWS Bedrock backend for the LLM Gateway.
//
// This package implements gateway.Backend for AWS Bedrock's InvokeModel API,
// supporting Claude (Anthropic), Titan (Amazon), and Llama (Meta) model
// families via a single Gateway-shaped entry point.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/praetorian-inc/arcsolver/internal/gateway/openaicompat"
	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/ratelimit"
	"github.com/praetorian-inc/arcsolver/pkg/registry"
)

func init() {
	gateway.Register("bedrock.Bedrock", NewBedrock)
}

// Default configuration values.
const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
)

// Bedrock is a gateway.Backend that wraps the AWS Bedrock Runtime API.
type Bedrock struct {
	client    *bedrockruntime.Client
	modelID   string
	region    string
	maxTokens int
	topP      float64

	// httpClient carries an optional client-side rate limit independent of
	// the Gateway's per-route limiter, for direct use of this backend
	// outside a Gateway (e.g. a standalone connectivity check).
	httpClient ratelimit.HTTPDoer
}

// NewBedrock creates a new Bedrock backend from registry configuration.
func NewBedrock(cfg registry.Config) (gateway.Backend, error) {
	g := &Bedrock{maxTokens: defaultMaxTokens}

	modelID, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, fmt.Errorf("bedrock backend: %w", err)
	}
	g.modelID = modelID

	region, err := registry.RequireString(cfg, "region")
	if err != nil {
		return nil, fmt.Errorf("bedrock backend: %w", err)
	}
	g.region = region

	g.maxTokens = registry.GetInt(cfg, "max_tokens", defaultMaxTokens)
	g.topP = registry.GetFloat64(cfg, "top_p", 0)

	if rps := registry.GetFloat64(cfg, "local_requests_per_second", 0); rps > 0 {
		burst := registry.GetFloat64(cfg, "local_burst", rps)
		limiter := ratelimit.NewLimiter(burst, rps)
		g.httpClient = ratelimit.NewRateLimitedHTTPClient(http.DefaultClient, limiter)
	}

	ctx := context.Background()
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(g.region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	var clientOpts []func(*bedrockruntime.Options)
	if endpoint := registry.GetString(cfg, "endpoint", ""); endpoint != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if g.httpClient != nil {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.HTTPClient = g.httpClient
		})
	}

	g.client = bedrockruntime.NewFromConfig(awsCfg, clientOpts...)
	return g, nil
}

// Generate implements gateway.Backend. model_extras may carry a "system"
// string, forwarded as the Claude system prompt; Bedrock has no native
// seed parameter so req.Seed only affects the prompt the Expert builds,
// not this call.
func (g *Bedrock) Generate(ctx context.Context, req gateway.Request) (string, error) {
	system, _ := req.Extras["system"].(string)

	var requestBody []byte
	var err error
	switch {
	case strings.HasPrefix(g.modelID, "anthropic.claude"):
		requestBody, err = g.buildClaudeRequest(req.Prompt, system, req.Temperature)
	case strings.HasPrefix(g.modelID, "amazon.titan"):
		requestBody, err = g.buildTitanRequest(req.Prompt, req.Temperature)
	case strings.HasPrefix(g.modelID, "meta.llama"):
		requestBody, err = g.buildLlamaRequest(req.Prompt, system, req.Temperature)
	default:
		return "", fmt.Errorf("bedrock: unsupported model family: %s", g.modelID)
	}
	if err != nil {
		return "", fmt.Errorf("bedrock: failed to build request: %w", err)
	}

	output, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		Body:        requestBody,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", g.handleError(err)
	}

	var text string
	switch {
	case strings.HasPrefix(g.modelID, "anthropic.claude"):
		text, err = g.parseClaudeResponse(output.Body)
	case strings.HasPrefix(g.modelID, "amazon.titan"):
		text, err = g.parseTitanResponse(output.Body)
	case strings.HasPrefix(g.modelID, "meta.llama"):
		text, err = g.parseLlamaResponse(output.Body)
	}
	if err != nil {
		return "", fmt.Errorf("bedrock: failed to parse response: %w", err)
	}
	return text, nil
}

// buildClaudeRequest builds a request for Anthropic Claude models on Bedrock.
func (g *Bedrock) buildClaudeRequest(prompt, system string, temperature float64) ([]byte, error) {
	req := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        g.maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": temperature,
	}
	if system != "" {
		req["system"] = system
	}
	if g.topP > 0 {
		req["top_p"] = g.topP
	}
	return json.Marshal(req)
}

// parseClaudeResponse parses a response from Anthropic Claude models on Bedrock.
func (g *Bedrock) parseClaudeResponse(body []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	var text string
	for _, content := range resp.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}
	return text, nil
}

// buildTitanRequest builds a request for Amazon Titan models on Bedrock.
func (g *Bedrock) buildTitanRequest(prompt string, temperature float64) ([]byte, error) {
	req := map[string]any{
		"inputText": prompt,
		"textGenerationConfig": map[string]any{
			"maxTokenCount": g.maxTokens,
			"temperature":   temperature,
		},
	}
	if g.topP > 0 {
		req["textGenerationConfig"].(map[string]any)["topP"] = g.topP
	}
	return json.Marshal(req)
}

// parseTitanResponse parses a response from Amazon Titan models on Bedrock.
func (g *Bedrock) parseTitanResponse(body []byte) (string, error) {
	var resp struct {
		Results []struct {
			OutputText string `json:"outputText"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("no results in Titan response")
	}
	return resp.Results[0].OutputText, nil
}

// buildLlamaRequest builds a request for Meta Llama models on Bedrock.
func (g *Bedrock) buildLlamaRequest(prompt, system string, temperature float64) ([]byte, error) {
	var wrapped string
	if system != "" {
		wrapped = fmt.Sprintf("<s>[INST] <<SYS>>\n%s\n<</SYS>>\n\n%s [/INST]", system, prompt)
	} else {
		wrapped = fmt.Sprintf("<s>[INST] %s [/INST]", prompt)
	}

	req := map[string]any{
		"prompt":      wrapped,
		"max_gen_len": g.maxTokens,
		"temperature": temperature,
	}
	if g.topP > 0 {
		req["top_p"] = g.topP
	}
	return json.Marshal(req)
}

// parseLlamaResponse parses a response from Meta Llama models on Bedrock.
func (g *Bedrock) parseLlamaResponse(body []byte) (string, error) {
	var resp struct {
		Generation string `json:"generation"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.Generation, nil
}

// Name returns the backend's fully qualified registry name.
func (g *Bedrock) Name() string {
	return "bedrock.Bedrock"
}

// Description returns a human-readable description.
func (g *Bedrock) Description() string {
	return "AWS Bedrock backend for Claude, Titan, and Llama model families"
}

// handleError classifies Bedrock API errors by exception-name substring
// (the SDK does not expose a typed rate-limit error) and wraps throttling
// as openaicompat.RateLimitError so the Gateway's isTransient check retries
// it without charging the Expert's fatal-retry budget.
func (g *Bedrock) handleError(err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "ThrottlingException"), strings.Contains(errStr, "TooManyRequestsException"):
		return &openaicompat.RateLimitError{Err: fmt.Errorf("bedrock: rate limit exceeded: %w", err)}
	case strings.Contains(errStr, "AccessDeniedException"), strings.Contains(errStr, "UnauthorizedException"):
		return fmt.Errorf("bedrock: authentication error: %w", err)
	case strings.Contains(errStr, "ValidationException"):
		return fmt.Errorf("bedrock: invalid request: %w", err)
	case strings.Contains(errStr, "ServiceUnavailableException"), strings.Contains(errStr, "InternalServerException"):
		return fmt.Errorf("bedrock: service error: %w", err)
	default:
		return fmt.Errorf("bedrock: API error: %w", err)
	}
}
