// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package openai_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/provider"
	"github.com/peersky-browser/peersky/internal/provider/openai"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

var _ provider.Provider = (*openai.Provider)(nil)

func TestOpenAIMissingAPIKey(t *testing.T) {
	t.Parallel()

	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))
}

func TestOpenAIName(t *testing.T) {
	t.Parallel()

	p, err := openai.New(openai.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.True(t, p.Available(context.Background()))
	assert.NoError(t, p.Close())
}

func chunk(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","created":1756339200,"model":"gpt-4.1-mini","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`+"\n\n", content)
}

func TestOpenAIStreamsTextDeltas(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key-not-real", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, chunk("Hello"))
		fmt.Fprint(w, chunk(" there"))
		fmt.Fprint(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1756339200,"model":"gpt-4.1-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := openai.New(openai.Config{APIKey: "test-key-not-real", BaseURL: srv.URL})
	require.NoError(t, err)

	events, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "gpt-4.1-mini",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
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

func TestOpenAIUpstreamFailureTripsHealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := openai.New(openai.Config{APIKey: "test-key-not-real", BaseURL: srv.URL})
	require.NoError(t, err)

	events, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "gpt-4.1-mini",
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

func TestOpenAIRejectsUnsupportedRole(t *testing.T) {
	t.Parallel()

	p, err := openai.New(openai.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), provider.ChatRequest{
		Model:    "gpt-4.1-mini",
		Messages: []provider.Message{{Role: "tool", Content: "x"}},
	})
	assert.True(t, pskyerr.IsInvalidInput(err))
}
