// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package provider hosts the language model backends behind the bridge's
// llm-* surface. Each backend streams chat events over a channel; the
// facade in this package bounds concurrency and flattens streams for the
// non-streaming calls.
package provider

import (
	"context"
	"strings"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Provider is one model backend.
type Provider interface {
	Name() string
	// Available reports whether the backend is currently usable; a
	// failing backend turns unavailable for a cooldown window.
	Available(ctx context.Context) bool
	// Chat starts a completion and streams events until done or error.
	// The channel is closed by the provider.
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Close() error
}

// ChatRequest is one completion request.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
}

// Message is one conversation turn.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole identifies a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ChatEvent is one streaming response event.
type ChatEvent struct {
	Type EventType
	Text string
	Err  string
}

// EventType distinguishes chat events.
type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// ParseModel splits a "provider/model" reference. A bare model name
// returns an empty provider for the registry to route by itself.
func ParseModel(ref string) (providerName, model string) {
	if p, m, ok := strings.Cut(ref, "/"); ok {
		return p, m
	}
	return "", ref
}

// ErrNoProvider builds the not-found error every routing miss reports.
func ErrNoProvider(ref string) error {
	return pskyerr.Errorf(pskyerr.CodeProviderNotFound, "no provider can serve model %q", ref)
}
