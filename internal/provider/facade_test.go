// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/bridge"
	"github.com/peersky-browser/peersky/internal/config"
	"github.com/peersky-browser/peersky/internal/provider"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

func newTestFacade(t *testing.T, p *fakeProvider, cfg config.LLMConfig) *provider.Facade {
	t.Helper()
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(p.Name(), p))
	return provider.NewFacade(reg, cfg)
}

func TestFacadeChatCollectsText(t *testing.T) {
	t.Parallel()

	backend := newFakeProvider("anthropic", "Hello", ", ", "world")
	f := newTestFacade(t, backend, config.LLMConfig{DefaultModel: "anthropic/claude-sonnet-4-5"})

	text, err := f.Chat(context.Background(), []bridge.ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "system", Content: "be polite"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "again"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)

	req := backend.last()
	assert.Equal(t, "claude-sonnet-4-5", req.Model)
	assert.Equal(t, "be brief\nbe polite", req.SystemPrompt)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, provider.RoleUser, req.Messages[0].Role)
	assert.Equal(t, provider.RoleAssistant, req.Messages[1].Role)
	assert.Positive(t, req.MaxTokens)
}

func TestFacadeCompleteWrapsPrompt(t *testing.T) {
	t.Parallel()

	backend := newFakeProvider("anthropic", "four")
	f := newTestFacade(t, backend, config.LLMConfig{DefaultModel: "anthropic/claude-sonnet-4-5"})

	text, err := f.Complete(context.Background(), "what is 2+2")
	require.NoError(t, err)
	assert.Equal(t, "four", text)

	req := backend.last()
	require.Len(t, req.Messages, 1)
	assert.Equal(t, provider.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "what is 2+2", req.Messages[0].Content)
}

func TestFacadeRejectsBadConversations(t *testing.T) {
	t.Parallel()

	backend := newFakeProvider("anthropic", "unused")
	f := newTestFacade(t, backend, config.LLMConfig{DefaultModel: "anthropic/claude-sonnet-4-5"})
	ctx := context.Background()

	_, err := f.Chat(ctx, nil)
	assert.True(t, pskyerr.IsInvalidInput(err))

	_, err = f.Chat(ctx, []bridge.ChatMessage{{Role: "system", Content: "only instructions"}})
	assert.True(t, pskyerr.IsInvalidInput(err))

	_, err = f.Chat(ctx, []bridge.ChatMessage{{Role: "tool", Content: "nope"}})
	assert.True(t, pskyerr.IsInvalidInput(err))

	assert.Zero(t, backend.calls)
}

func TestFacadeSurfacesStreamErrors(t *testing.T) {
	t.Parallel()

	backend := newFakeProvider("anthropic", "partial")
	backend.failWith = "overloaded"
	f := newTestFacade(t, backend, config.LLMConfig{DefaultModel: "anthropic/claude-sonnet-4-5"})

	_, err := f.Chat(context.Background(), []bridge.ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.True(t, pskyerr.HasCode(err, pskyerr.CodeProviderUpstreamFailure))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestFacadeStreamIterator(t *testing.T) {
	t.Parallel()

	backend := newFakeProvider("anthropic", "alpha", "beta")
	f := newTestFacade(t, backend, config.LLMConfig{DefaultModel: "anthropic/claude-sonnet-4-5"})

	it, err := f.Stream(context.Background(), "go")
	require.NoError(t, err)

	ctx := context.Background()
	var got []string
	for {
		value, done, err := it.Next(ctx)
		require.NoError(t, err)
		if done {
			break
		}
		got = append(got, value.(string))
	}
	assert.Equal(t, []string{"alpha", "beta"}, got)
	require.NoError(t, it.Close())
}

// blockingProvider holds its event channel open until released, pinning
// the facade's concurrency slot.
type blockingProvider struct {
	events chan provider.ChatEvent
}

func (b *blockingProvider) Name() string                     { return "slow" }
func (b *blockingProvider) Available(_ context.Context) bool { return true }
func (b *blockingProvider) Close() error                     { return nil }

func (b *blockingProvider) Chat(_ context.Context, _ provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	return b.events, nil
}

func TestFacadeBoundsConcurrency(t *testing.T) {
	t.Parallel()

	backend := &blockingProvider{events: make(chan provider.ChatEvent)}
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register("slow", backend))
	f := provider.NewFacade(reg, config.LLMConfig{DefaultModel: "slow/any", MaxConcurrent: 1})

	it, err := f.Stream(context.Background(), "first")
	require.NoError(t, err)

	// The single slot is held by the open stream.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Complete(ctx, "second")
	require.Error(t, err)
	assert.True(t, pskyerr.HasCode(err, pskyerr.CodeProviderUpstreamFailure))

	// Closing the iterator frees the slot.
	require.NoError(t, it.Close())
	_, err = f.Stream(context.Background(), "third")
	require.NoError(t, err)
}

func TestFacadeStreamIteratorCancellation(t *testing.T) {
	t.Parallel()

	backend := &blockingProvider{events: make(chan provider.ChatEvent)}
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register("slow", backend))
	f := provider.NewFacade(reg, config.LLMConfig{DefaultModel: "slow/any"})

	it, err := f.Stream(context.Background(), "hang")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = it.Next(ctx)
	require.Error(t, err)
	assert.True(t, pskyerr.HasCode(err, pskyerr.CodeProviderUpstreamFailure))
}

func TestFacadeRouteFailurePropagates(t *testing.T) {
	t.Parallel()

	f := provider.NewFacade(provider.NewRegistry(), config.LLMConfig{DefaultModel: "anthropic/claude-sonnet-4-5"})

	_, err := f.Complete(context.Background(), "hi")
	assert.True(t, pskyerr.IsNotFound(err))

	_, err = f.Stream(context.Background(), "hi")
	assert.True(t, pskyerr.IsNotFound(err))
}
