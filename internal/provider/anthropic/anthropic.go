// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package anthropic backs the model facade with the Anthropic Messages
// API.
package anthropic

import (
	"context"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/peersky-browser/peersky/internal/provider"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Config holds the Anthropic backend configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, for tests against a mock server
}

// Provider implements provider.Provider over the Anthropic SDK.
type Provider struct {
	client anthropicsdk.Client
	health *provider.HealthTracker
}

func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, pskyerr.New(pskyerr.CodeProviderRequestInvalid, "anthropic: missing API key")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: anthropicsdk.NewClient(opts...),
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) Close() error { return nil }

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

func buildParams(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	return params, nil
}

func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam
	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleUser:
			result = append(result, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content)))
		case provider.RoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content)))
		case provider.RoleSystem:
			// System turns travel in the top-level system param.
			continue
		default:
			return nil, pskyerr.Errorf(pskyerr.CodeProviderRequestInvalid,
				"anthropic: unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}

// streamChat converts SDK streaming events into facade chat events.
func (p *Provider) streamChat(ctx context.Context, params anthropicsdk.MessageNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Messages.NewStreaming(ctx, params)

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				ch <- provider.ChatEvent{Type: provider.EventTextDelta, Text: event.Delta.Text}
			}
		case "message_stop":
			p.health.RecordSuccess()
			ch <- provider.ChatEvent{Type: provider.EventDone}
			return
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
