// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/extension"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

type fakeDispatcher struct {
	clicks []string
	popups []string
	anchor extension.Rect
}

func (f *fakeDispatcher) DispatchClick(id string) error {
	f.clicks = append(f.clicks, id)
	return nil
}

func (f *fakeDispatcher) ShowPopup(id, popupPath string, anchor extension.Rect) error {
	f.popups = append(f.popups, id+":"+popupPath)
	f.anchor = anchor
	return nil
}

func newTestBroker(t *testing.T) (*extension.ActionBroker, *extension.Installer, *fakeDispatcher, string) {
	t.Helper()
	in, reg, _, _ := newTestInstaller(t, &fakeStore{})
	d := &fakeDispatcher{}
	broker := extension.NewActionBroker(reg, d)

	res := in.InstallFromBlob(context.Background(), "one.zip", manifestZip(t, "1.0"), false)
	require.True(t, res.Success)
	return broker, in, d, res.Extension.ID
}

func TestListActionsOnlyEnabledWithAction(t *testing.T) {
	t.Parallel()

	broker, in, _, id := newTestBroker(t)

	actions := broker.ListActions()
	require.Len(t, actions, 1)
	assert.Equal(t, id, actions[0].ID)
	assert.Equal(t, "Blob", actions[0].Title)
	assert.False(t, actions[0].Pinned)

	require.True(t, in.Toggle(id, false).Success)
	assert.Empty(t, broker.ListActions())

	require.True(t, in.Toggle(id, true).Success)
	require.True(t, in.SetPinned(id, true).Success)
	actions = broker.ListActions()
	require.Len(t, actions, 1)
	assert.True(t, actions[0].Pinned)
}

func TestClickAction(t *testing.T) {
	t.Parallel()

	broker, in, d, id := newTestBroker(t)

	require.NoError(t, broker.ClickAction(id))
	assert.Equal(t, []string{id}, d.clicks)

	require.True(t, in.Toggle(id, false).Success)
	err := broker.ClickAction(id)
	require.Error(t, err)
	assert.True(t, pskyerr.IsNotFound(err))
}

func TestOpenPopupAnchorsRect(t *testing.T) {
	t.Parallel()

	broker, _, d, id := newTestBroker(t)

	anchor := extension.Rect{X: 10, Y: 20, Width: 32, Height: 32}
	require.NoError(t, broker.OpenPopup(id, anchor))
	require.Len(t, d.popups, 1)
	assert.Equal(t, id+":popup.html", d.popups[0])
	assert.Equal(t, anchor, d.anchor)
}

func TestClickUnknownExtension(t *testing.T) {
	t.Parallel()

	broker, _, _, _ := newTestBroker(t)
	err := broker.ClickAction("abcdefghijklmnopabcdefghijklmnop")
	require.Error(t, err)
	assert.True(t, pskyerr.IsNotFound(err))
}
