// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package openrouter

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/peersky-browser/peersky/internal/provider"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

const baseURL = "https://openrouter.ai/api/v1"

// Config holds OpenRouter backend configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using OpenRouter's OpenAI-compatible API.
// Model refs pass through unchanged, OpenRouter expects the "vendor/model" form.
type Provider struct {
	client openaisdk.Client
	health *provider.HealthTracker
}

// New creates an OpenRouter backend. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, pskyerr.New(pskyerr.CodeProviderRequestInvalid, "openrouter: missing API key")
	}

	base := baseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}

	client := openaisdk.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(base),
	)
	return &Provider{
		client: client,
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return "openrouter" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	events := make(chan provider.ChatEvent, 64)
	go func() {
		defer close(events)
		p.streamChat(ctx, params, events)
	}()
	return events, nil
}

func (p *Provider) Close() error { return nil }

func buildParams(req provider.ChatRequest) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

// convertMessages prepends the system prompt, if present, as a system message.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case provider.RoleAssistant:
			result = append(result, openaisdk.AssistantMessage(msg.Content))
		case provider.RoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			return nil, pskyerr.Errorf(pskyerr.CodeProviderRequestInvalid, "openrouter: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// streamChat converts Chat Completions stream chunks into ChatEvent values.
func (p *Provider) streamChat(ctx context.Context, params openaisdk.ChatCompletionNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				ch <- provider.ChatEvent{Type: provider.EventTextDelta, Text: choice.Delta.Content}
			}
		}
	}

	if err := stream.Err(); err != nil {
		p.health.RecordFailure()
		ch <- provider.ChatEvent{Type: provider.EventError, Err: err.Error()}
		return
	}

	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventDone}
}
