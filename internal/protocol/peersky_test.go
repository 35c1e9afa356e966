// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package protocol_test

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/protocol"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

func TestPeerskyServesChromePages(t *testing.T) {
	t.Parallel()

	h := protocol.NewPeerskyHandler()
	for _, area := range []string{"home", "settings", "extensions", "bookmarks", "tabs", "error"} {
		resp, err := h.Serve(context.Background(), parseErr(t, "peersky://"+area, ""))
		require.NoError(t, err, "area %s", area)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "<!DOCTYPE html>")
	}
}

func TestPeerskyServesThemeAssets(t *testing.T) {
	t.Parallel()

	h := protocol.NewPeerskyHandler()
	resp, err := h.Serve(context.Background(), parseErr(t, "peersky://theme/vars.css", ""))
	require.NoError(t, err)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
}

func TestPeerskyUnknownPageIsNotFound(t *testing.T) {
	t.Parallel()

	h := protocol.NewPeerskyHandler()
	_, err := h.Serve(context.Background(), parseErr(t, "peersky://no-such-page", ""))
	require.Error(t, err)
	assert.True(t, pskyerr.IsNotFound(err))
}

func TestPeerskyDefaultsToHome(t *testing.T) {
	t.Parallel()

	h := protocol.NewPeerskyHandler()
	resp, err := h.Serve(context.Background(), parseErr(t, "peersky://", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestReadCSS(t *testing.T) {
	t.Parallel()

	h := protocol.NewPeerskyHandler()

	css, err := h.ReadCSS("vars")
	require.NoError(t, err)
	assert.Contains(t, css, "--bg")

	css, err = h.ReadCSS("dark.css")
	require.NoError(t, err)
	assert.Contains(t, css, "--bg")

	_, err = h.ReadCSS("../home.html")
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))

	_, err = h.ReadCSS("missing")
	require.Error(t, err)
	assert.True(t, pskyerr.IsNotFound(err))
}
