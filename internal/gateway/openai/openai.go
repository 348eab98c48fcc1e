// Package openai provides an OpenAI backend for the LLM Gateway.
//
// This package implements gateway.Backend for OpenAI's chat and legacy
// completion APIs, adapted from the single-prompt/single-response contract
// the Gateway requires (spec.md §4.5).
package openai

import (
	"context"
	"fmt"

	"github.com/praetorian-inc/arcsolver/internal/gateway/openaicompat"
	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/registry"
	goopenai "github.com/sashabaranov/go-openai"
)

func init() {
	gateway.Register("openai.OpenAI", NewOpenAI)
}

// chatModels references the shared set of models that use the chat completions API.
var chatModels = openaicompat.ChatModels

// completionModels references the shared set of models that use the legacy completions API.
var completionModels = openaicompat.CompletionModels

// OpenAI is a gateway.Backend that wraps the OpenAI API.
type OpenAI struct {
	client *goopenai.Client
	model  string
	isChat bool

	maxTokens        int
	topP             float32
	frequencyPenalty float32
	presencePenalty  float32
	stop             []string
}

// NewOpenAI creates a new OpenAI backend from registry configuration.
func NewOpenAI(m registry.Config) (gateway.Backend, error) {
	cfg, err := ConfigFromMap(m)
	if err != nil {
		return nil, err
	}
	return NewOpenAITyped(cfg)
}

// NewOpenAITyped creates a new OpenAI backend from typed configuration.
func NewOpenAITyped(cfg Config) (*OpenAI, error) {
	g := &OpenAI{
		model:            cfg.Model,
		maxTokens:        cfg.MaxTokens,
		topP:             cfg.TopP,
		frequencyPenalty: cfg.FrequencyPenalty,
		presencePenalty:  cfg.PresencePenalty,
		stop:             cfg.Stop,
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("openai backend requires model")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai backend requires api_key")
	}

	g.isChat = chatModels[cfg.Model]
	if !g.isChat && !completionModels[cfg.Model] {
		g.isChat = true // Default to chat for unknown models
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	g.client = goopenai.NewClientWithConfig(clientCfg)

	return g, nil
}

// NewOpenAIWithOptions creates a new OpenAI backend using functional options.
func NewOpenAIWithOptions(opts ...Option) (*OpenAI, error) {
	cfg := ApplyOptions(DefaultConfig(), opts...)
	return NewOpenAITyped(cfg)
}

// Generate implements gateway.Backend.
func (g *OpenAI) Generate(ctx context.Context, req gateway.Request) (string, error) {
	if g.isChat {
		return g.generateChat(ctx, req)
	}
	return g.generateCompletion(ctx, req)
}

// generateChat handles chat completion requests.
func (g *OpenAI) generateChat(ctx context.Context, req gateway.Request) (string, error) {
	chatReq := goopenai.ChatCompletionRequest{
		Model: g.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
	}
	if req.Seed != 0 {
		seed := int(req.Seed)
		chatReq.Seed = &seed
	}
	if g.maxTokens > 0 {
		chatReq.MaxTokens = g.maxTokens
	}
	if g.topP != 0 {
		chatReq.TopP = g.topP
	}
	if g.frequencyPenalty != 0 {
		chatReq.FrequencyPenalty = g.frequencyPenalty
	}
	if g.presencePenalty != 0 {
		chatReq.PresencePenalty = g.presencePenalty
	}
	if len(g.stop) > 0 {
		chatReq.Stop = g.stop
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", openaicompat.WrapError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// generateCompletion handles legacy completion requests.
func (g *OpenAI) generateCompletion(ctx context.Context, req gateway.Request) (string, error) {
	compReq := goopenai.CompletionRequest{
		Model:       g.model,
		Prompt:      req.Prompt,
		Temperature: float32(req.Temperature),
	}
	if g.maxTokens > 0 {
		compReq.MaxTokens = g.maxTokens
	}
	if g.topP != 0 {
		compReq.TopP = g.topP
	}
	if g.frequencyPenalty != 0 {
		compReq.FrequencyPenalty = g.frequencyPenalty
	}
	if g.presencePenalty != 0 {
		compReq.PresencePenalty = g.presencePenalty
	}
	if len(g.stop) > 0 {
		compReq.Stop = g.stop
	}

	resp, err := g.client.CreateCompletion(ctx, compReq)
	if err != nil {
		return "", openaicompat.WrapError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: response contained no choices")
	}
	return resp.Choices[0].Text, nil
}
