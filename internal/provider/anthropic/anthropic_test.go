// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package anthropic_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/provider"
	"github.com/peersky-browser/peersky/internal/provider/anthropic"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

var _ provider.Provider = (*anthropic.Provider)(nil)

func TestAnthropicMissingAPIKey(t *testing.T) {
	t.Parallel()

	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))
}

func TestAnthropicName(t *testing.T) {
	t.Parallel()

	p, err := anthropic.New(anthropic.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
	assert.True(t, p.Available(context.Background()))
	assert.NoError(t, p.Close())
}

func TestAnthropicStreamsTextDeltas(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key-not-real", r.Header.Get("x-api-key"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, `data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-5","usage":{"input_tokens":3,"output_tokens":1}}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`+"\n\n")
		fmt.Fprint(w, "event: message_stop\n")
		fmt.Fprint(w, `data: {"type":"message_stop"}`+"\n\n")
	}))
	defer srv.Close()

	p, err := anthropic.New(anthropic.Config{APIKey: "test-key-not-real", BaseURL: srv.URL})
	require.NoError(t, err)

	events, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:        "claude-sonnet-4-5",
		SystemPrompt: "be brief",
		Messages:     []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var text string
	var done bool
	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			text += ev.Text
		case provider.EventDone:
			done = true
		case provider.EventError:
			t.Fatalf("unexpected stream error: %s", ev.Err)
		}
	}
	assert.Equal(t, "Hello there", text)
	assert.True(t, done)
	assert.True(t, p.Available(context.Background()))
}

func TestAnthropicUpstreamFailureTripsHealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := anthropic.New(anthropic.Config{APIKey: "test-key-not-real", BaseURL: srv.URL})
	require.NoError(t, err)

	events, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var failed bool
	for ev := range events {
		if ev.Type == provider.EventError {
			failed = true
		}
	}
	assert.True(t, failed)
	assert.False(t, p.Available(context.Background()))
}

func TestAnthropicRejectsUnsupportedRole(t *testing.T) {
	t.Parallel()

	p, err := anthropic.New(anthropic.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), provider.ChatRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []provider.Message{{Role: "tool", Content: "x"}},
	})
	assert.True(t, pskyerr.IsInvalidInput(err))
}
