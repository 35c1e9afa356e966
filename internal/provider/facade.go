// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package provider

import (
	"context"
	"strings"
	"sync"

	"github.com/peersky-browser/peersky/internal/bridge"
	"github.com/peersky-browser/peersky/internal/config"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

const defaultMaxTokens = 1024

// Facade adapts the provider registry to the bridge's llm-* surface.
// A semaphore bounds how many completions run at once across every
// document; the bound covers streams until their iterator is released.
type Facade struct {
	registry *Registry
	model    string
	sem      chan struct{}
}

// NewFacade wires the facade over reg with the configured default model
// and concurrency bound.
func NewFacade(reg *Registry, cfg config.LLMConfig) *Facade {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Facade{
		registry: reg,
		model:    cfg.DefaultModel,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

func (f *Facade) acquire(ctx context.Context) (func(), error) {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, pskyerr.Wrap(ctx.Err(), pskyerr.CodeProviderUpstreamFailure, "waiting for a model slot")
	}
	var once sync.Once
	return func() { once.Do(func() { <-f.sem }) }, nil
}

// Chat runs a multi-turn conversation to completion and returns the
// assembled assistant text.
func (f *Facade) Chat(ctx context.Context, messages []bridge.ChatMessage) (string, error) {
	req, err := f.buildRequest(messages)
	if err != nil {
		return "", err
	}

	release, err := f.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	return f.collect(ctx, req)
}

// Complete answers a single prompt.
func (f *Facade) Complete(ctx context.Context, prompt string) (string, error) {
	return f.Chat(ctx, []bridge.ChatMessage{{Role: "user", Content: prompt}})
}

// Stream starts a completion and returns an iterator yielding text
// deltas. The concurrency slot is held until the iterator finishes or
// is released.
func (f *Facade) Stream(ctx context.Context, prompt string) (bridge.Iterator, error) {
	req, err := f.buildRequest([]bridge.ChatMessage{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, err
	}

	release, err := f.acquire(ctx)
	if err != nil {
		return nil, err
	}

	p, model, err := f.registry.Route(ctx, f.model)
	if err != nil {
		release()
		return nil, err
	}
	req.Model = model

	// The stream outlives the bridge call that started it.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events, err := p.Chat(streamCtx, req)
	if err != nil {
		cancel()
		release()
		return nil, err
	}

	it := &streamIterator{events: events}
	it.finish = func() {
		cancel()
		release()
	}
	return it, nil
}

func (f *Facade) buildRequest(messages []bridge.ChatMessage) (ChatRequest, error) {
	req := ChatRequest{Model: f.model, MaxTokens: defaultMaxTokens}

	var system []string
	for _, m := range messages {
		switch MessageRole(m.Role) {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser, RoleAssistant:
			req.Messages = append(req.Messages, Message{Role: MessageRole(m.Role), Content: m.Content})
		default:
			return ChatRequest{}, pskyerr.Errorf(pskyerr.CodeProviderRequestInvalid,
				"unsupported message role %q", m.Role)
		}
	}
	req.SystemPrompt = strings.Join(system, "\n")

	if len(req.Messages) == 0 {
		return ChatRequest{}, pskyerr.New(pskyerr.CodeProviderRequestInvalid, "conversation has no user or assistant turns")
	}
	return req, nil
}

func (f *Facade) collect(ctx context.Context, req ChatRequest) (string, error) {
	p, model, err := f.registry.Route(ctx, f.model)
	if err != nil {
		return "", err
	}
	req.Model = model

	events, err := p.Chat(ctx, req)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for ev := range events {
		switch ev.Type {
		case EventTextDelta:
			text.WriteString(ev.Text)
		case EventError:
			return "", pskyerr.Errorf(pskyerr.CodeProviderUpstreamFailure, "model stream failed: %s", ev.Err)
		case EventDone:
			return text.String(), nil
		}
	}
	return text.String(), nil
}

type streamIterator struct {
	events <-chan ChatEvent

	mu     sync.Mutex
	done   bool
	finish func()
}

func (it *streamIterator) Next(ctx context.Context) (any, bool, error) {
	for {
		select {
		case ev, ok := <-it.events:
			if !ok {
				it.stop()
				return nil, true, nil
			}
			switch ev.Type {
			case EventTextDelta:
				return ev.Text, false, nil
			case EventError:
				it.stop()
				return nil, false, pskyerr.Errorf(pskyerr.CodeProviderUpstreamFailure, "model stream failed: %s", ev.Err)
			case EventDone:
				it.stop()
				return nil, true, nil
			}
		case <-ctx.Done():
			it.stop()
			return nil, false, pskyerr.Wrap(ctx.Err(), pskyerr.CodeProviderUpstreamFailure, "waiting for model output")
		}
	}
}

func (it *streamIterator) Close() error {
	it.stop()
	return nil
}

func (it *streamIterator) stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.done {
		it.done = true
		it.finish()
	}
}
