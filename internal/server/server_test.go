// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/bridge"
	"github.com/peersky-browser/peersky/internal/extension"
	"github.com/peersky-browser/peersky/internal/permission"
	"github.com/peersky-browser/peersky/internal/protocol"
	"github.com/peersky-browser/peersky/internal/server"
	"github.com/peersky-browser/peersky/internal/settings"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// fakeBridge records calls and scripts Invoke results.
type fakeBridge struct {
	mu         sync.Mutex
	closed     []string
	lastMethod string
	result     any
	err        error
}

func (f *fakeBridge) RegisterDocument(url string) *bridge.Document {
	return &bridge.Document{ID: "doc-1", URL: url, Class: bridge.ClassHome}
}

func (f *fakeBridge) CloseDocument(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
}

func (f *fakeBridge) Invoke(_ context.Context, _, method string, _ json.RawMessage) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMethod = method
	return f.result, f.err
}

func newTestServer(t *testing.T, fb *fakeBridge, cfg server.Config) (*server.Server, server.Deps) {
	t.Helper()

	router := protocol.NewRouter()
	router.Register("ipfs", protocol.HandlerFunc(func(_ context.Context, _ *protocol.Request) (*protocol.Response, error) {
		resp := &protocol.Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"text/plain"}},
			Body:   io.NopCloser(bytes.NewReader([]byte("hello from ipfs"))),
		}
		return resp, nil
	}))

	deps := server.Deps{
		Bridge:          fb,
		Router:          router,
		ExtensionEvents: extension.NewBus(),
		SettingsEvents:  settings.NewBus(),
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	srv, err := server.New(cfg, deps)
	require.NoError(t, err)
	return srv, deps
}

func localRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "127.0.0.1:54321"
	return req
}

func TestServerRequiresConfiguration(t *testing.T) {
	t.Parallel()

	_, err := server.New(server.Config{}, server.Deps{})
	assert.True(t, pskyerr.IsInvalidInput(err))

	_, err = server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Deps{})
	assert.True(t, pskyerr.IsInvalidInput(err))
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeBridge{}, server.Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestDocumentLifecycle(t *testing.T) {
	t.Parallel()

	fb := &fakeBridge{result: bridge.Envelope{OK: true, Value: "dark"}}
	srv, _ := newTestServer(t, fb, server.Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodPost, "/api/v1/documents",
		strings.NewReader(`{"url":"peersky://home"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reg struct {
		ID    string `json:"id"`
		Class string `json:"class"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "doc-1", reg.ID)
	assert.Equal(t, string(bridge.ClassHome), reg.Class)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodPost, "/api/v1/documents/doc-1/invoke",
		strings.NewReader(`{"method":"settings-get","args":{"key":"theme"}}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "settings-get", fb.lastMethod)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodDelete, "/api/v1/documents/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"doc-1"}, fb.closed)
}

func TestInvokeErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "undefined method is forbidden",
			err:        pskyerr.New(pskyerr.CodeBridgeMethodUndefined, "llm-chat is not defined for Home pages"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unknown document is not found",
			err:        pskyerr.New(pskyerr.CodeBridgeDocumentUnknown, "no document"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "bad arguments are a bad request",
			err:        pskyerr.New(pskyerr.CodeBridgeArgumentInvalid, "key must be a string"),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fb := &fakeBridge{err: tt.err}
			srv, _ := newTestServer(t, fb, server.Config{})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, localRequest(http.MethodPost, "/api/v1/documents/doc-1/invoke",
				strings.NewReader(`{"method":"anything"}`)))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), string(pskyerr.CodeOf(tt.err)))
		})
	}
}

func TestFetchStreamsResolvedContent(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeBridge{}, server.Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodGet, "/api/v1/fetch?url=ipfs%3A%2F%2Fbafytest%2Findex.html", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "hello from ipfs", rec.Body.String())
}

func TestFetchFailureRedirectsToErrorPage(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeBridge{}, server.Config{})

	// hyper has no handler registered in the test router.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodGet, "/api/v1/fetch?url=hyper%3A%2F%2Fabc", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "peersky://error?")
}

func TestFetchRejectsMissingURL(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeBridge{}, server.Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodGet, "/api/v1/fetch", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsStream(t *testing.T) {
	t.Parallel()

	srv, deps := newTestServer(t, &fakeBridge{}, server.Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readUntil := func(prefix string) string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, prefix) {
				return strings.TrimSpace(line)
			}
		}
	}

	require.Equal(t, "event: ready", readUntil("event: "))

	deps.SettingsEvents.Publish(settings.Event{Type: settings.EventThemeChanged, Key: settings.KeyTheme, Value: "dark"})
	assert.Equal(t, "event: theme-changed", readUntil("event: "))
	assert.Contains(t, readUntil("data: "), `"dark"`)

	deps.ExtensionEvents.Publish(extension.Event{Type: extension.EventInstalled, ID: "abcdefghijklmnopqrstuvwxyzabcdef"})
	assert.Equal(t, "event: extension-installed", readUntil("event: "))

	deps.ExtensionEvents.Publish(extension.Event{Type: extension.EventDisabled, ID: "abcdefghijklmnopqrstuvwxyzabcdef"})
	assert.Equal(t, "event: extension-toggled", readUntil("event: "))

	deps.ExtensionEvents.Publish(extension.Event{Type: extension.EventUpdated, ID: "abcdefghijklmnopqrstuvwxyzabcdef"})
	assert.Equal(t, "event: extension-changed", readUntil("event: "))
}

func TestLoopbackGuard(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeBridge{}, server.Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:40000"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimitEnforced(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &fakeBridge{}, server.Config{
		RateLimit: server.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimitConfigValidation(t *testing.T) {
	t.Parallel()

	cfg := server.RateLimitConfig{RequestsPerSecond: 5}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))

	cfg = server.RateLimitConfig{RequestsPerSecond: -1}
	assert.Error(t, cfg.Validate())

	cfg = server.RateLimitConfig{RequestsPerSecond: 5, Burst: 10}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10000, cfg.MaxVisitors)
}

func TestPermissionCheckAndDecide(t *testing.T) {
	t.Parallel()

	router := protocol.NewRouter()
	oracle := permission.NewOracle(filepath.Join(t.TempDir(), "permissions.json"), nil)
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Deps{
		Bridge:      &fakeBridge{},
		Router:      router,
		Permissions: oracle,
	})
	require.NoError(t, err)

	check := func() (decided, allowed bool) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, localRequest(http.MethodPost, "/api/v1/permissions/check",
			strings.NewReader(`{"origin":"https://a.example","permission":"geolocation"}`)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out struct {
			Promptable bool `json:"promptable"`
			Decided    bool `json:"decided"`
			Allowed    bool `json:"allowed"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.True(t, out.Promptable)
		return out.Decided, out.Allowed
	}

	decided, _ := check()
	assert.False(t, decided, "no decision cached yet")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodPost, "/api/v1/permissions/decide",
		strings.NewReader(`{"origin":"https://a.example","permission":"geolocation","result":"allow-always"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"allowed":true`)

	decided, allowed := check()
	assert.True(t, decided)
	assert.True(t, allowed)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodPost, "/api/v1/permissions/decide",
		strings.NewReader(`{"origin":"https://a.example","permission":"geolocation","result":"maybe"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissionCheckUnknownPermission(t *testing.T) {
	t.Parallel()

	oracle := permission.NewOracle(filepath.Join(t.TempDir(), "permissions.json"), nil)
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Deps{
		Bridge:      &fakeBridge{},
		Router:      protocol.NewRouter(),
		Permissions: oracle,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, localRequest(http.MethodPost, "/api/v1/permissions/check",
		strings.NewReader(`{"origin":"https://a.example","permission":"clipboard"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"promptable":false`)
	assert.Contains(t, rec.Body.String(), `"decided":true`)
	assert.Contains(t, rec.Body.String(), `"allowed":false`)
}
