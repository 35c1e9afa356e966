// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/extension"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// fakeStore serves canned CRX payloads keyed by extension id.
type fakeStore struct {
	payloads map[string][]byte
	versions map[string]string
}

func (f *fakeStore) FetchCRX(_ context.Context, id string) ([]byte, error) {
	data, ok := f.payloads[id]
	if !ok {
		return nil, pskyerr.Errorf(pskyerr.CodeExtensionInstallNetwork, "no payload for %s", id)
	}
	return data, nil
}

func (f *fakeStore) LatestVersion(_ context.Context, id string) (string, error) {
	v, ok := f.versions[id]
	if !ok {
		return "", pskyerr.Errorf(pskyerr.CodeExtensionInstallNetwork, "no version for %s", id)
	}
	return v, nil
}

func newTestInstaller(t *testing.T, store extension.Downloader) (*extension.Installer, *extension.Registry, *extension.Bus, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := extension.OpenRegistry(filepath.Join(dir, "extensions.json"))
	require.NoError(t, err)
	bus := extension.NewBus()
	in := extension.NewInstaller(reg, extension.NewValidator(nil), bus, store, dir)
	return in, reg, bus, dir
}

func manifestZip(t *testing.T, version string, permissions ...string) []byte {
	t.Helper()
	perms := ""
	for i, p := range permissions {
		if i > 0 {
			perms += ","
		}
		perms += fmt.Sprintf("%q", p)
	}
	return zipBytes(t, map[string]string{
		"manifest.json": fmt.Sprintf(`{
			"manifest_version": 3,
			"name": "Blob Extension",
			"version": %q,
			"permissions": [%s],
			"action": {"default_title": "Blob", "default_popup": "popup.html"}
		}`, version, perms),
		"popup.html": "<html></html>",
	})
}

func drainEvents(ch <-chan extension.Event) []extension.Event {
	var out []extension.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestInstallFromBlobRoundTrip(t *testing.T) {
	t.Parallel()

	in, reg, bus, _ := newTestInstaller(t, &fakeStore{})
	events, cancel := bus.Subscribe()
	defer cancel()

	data := manifestZip(t, "1.0", "storage")
	wantID := extension.DeriveID(data)

	res := in.InstallFromBlob(context.Background(), "blob.zip", data, false)
	require.NoError(t, res.Err)
	require.True(t, res.Success)
	require.NotNil(t, res.Extension)
	assert.Equal(t, wantID, res.Extension.ID)
	assert.True(t, res.Extension.Enabled)
	assert.Equal(t, extension.SourceLocal, res.Extension.Source)

	rec, err := reg.Get(wantID)
	require.NoError(t, err)
	assert.DirExists(t, rec.InstalledPath)
	assert.FileExists(t, filepath.Join(rec.InstalledPath, "manifest.json"))

	got := drainEvents(events)
	require.Len(t, got, 2)
	assert.Equal(t, extension.EventInstalled, got[0].Type)
	assert.Equal(t, wantID, got[0].ID)
	assert.Equal(t, extension.EventActionChanged, got[1].Type)

	// Uninstall restores catalog and filesystem.
	ures := in.Uninstall(wantID)
	require.NoError(t, ures.Err)
	assert.True(t, ures.Success)
	assert.Empty(t, reg.List())
	assert.NoDirExists(t, rec.InstalledPath)

	got = drainEvents(events)
	require.Len(t, got, 2)
	assert.Equal(t, extension.EventUninstalled, got[0].Type)

	// Second uninstall is a no-op.
	ures = in.Uninstall(wantID)
	require.NoError(t, ures.Err)
	assert.True(t, ures.Success)
}

func TestInstallFromBlobRejectsBadArchiveName(t *testing.T) {
	t.Parallel()

	in, _, _, _ := newTestInstaller(t, &fakeStore{})
	res := in.InstallFromBlob(context.Background(), "payload.tar.gz", []byte("x"), false)
	require.Error(t, res.Err)
	assert.Equal(t, "invalid", res.ErrorKind)
}

func TestInstallBlockedPermissionLeavesCatalogUntouched(t *testing.T) {
	t.Parallel()

	in, reg, _, dir := newTestInstaller(t, &fakeStore{})
	data := manifestZip(t, "1.0", "debugger", "storage")

	res := in.InstallFromBlob(context.Background(), "blob.zip", data, false)
	require.Error(t, res.Err)
	assert.Equal(t, "invalid", res.ErrorKind)
	assert.Contains(t, res.Error, "Blocked permission: debugger")
	assert.Empty(t, reg.List())

	// Staging must not leak.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".staging-")
	}
}

func TestInstallDangerousPermissionNeedsConfirmation(t *testing.T) {
	t.Parallel()

	in, reg, _, _ := newTestInstaller(t, &fakeStore{})
	data := manifestZip(t, "1.0", "webRequest")

	res := in.InstallFromBlob(context.Background(), "blob.zip", data, false)
	require.NoError(t, res.Err)
	assert.False(t, res.Success)
	assert.True(t, res.NeedsConfirmation)
	assert.Empty(t, reg.List())

	res = in.InstallFromBlob(context.Background(), "blob.zip", data, true)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Len(t, reg.List(), 1)
}

func TestInstallRejectsDowngrade(t *testing.T) {
	t.Parallel()

	in, reg, _, _ := newTestInstaller(t, &fakeStore{})

	// Same id requires the same payload bytes, so seed the registry with a
	// newer version directly.
	data := manifestZip(t, "1.0")
	id := extension.DeriveID(data)
	res := in.InstallFromBlob(context.Background(), "blob.zip", data, false)
	require.True(t, res.Success)

	rec := *res.Extension
	rec.Version = "2.0"
	require.NoError(t, reg.Upsert(&rec))

	res = in.InstallFromBlob(context.Background(), "blob.zip", data, false)
	require.Error(t, res.Err)
	assert.Equal(t, "invalid", res.ErrorKind)

	got, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "2.0", got.Version)
}

func TestUninstallSystemExtensionRefused(t *testing.T) {
	t.Parallel()

	in, reg, _, _ := newTestInstaller(t, &fakeStore{})
	data := manifestZip(t, "1.0")
	res := in.InstallFromBlob(context.Background(), "blob.zip", data, false)
	require.True(t, res.Success)

	rec := *res.Extension
	rec.IsSystem = true
	require.NoError(t, reg.Upsert(&rec))

	ures := in.Uninstall(rec.ID)
	require.Error(t, ures.Err)
	assert.Equal(t, "permission", ures.ErrorKind)
	_, err := reg.Get(rec.ID)
	assert.NoError(t, err)
}

func TestToggleIsIdempotent(t *testing.T) {
	t.Parallel()

	in, _, bus, _ := newTestInstaller(t, &fakeStore{})
	data := manifestZip(t, "1.0")
	res := in.InstallFromBlob(context.Background(), "blob.zip", data, false)
	require.True(t, res.Success)
	id := res.Extension.ID

	events, cancel := bus.Subscribe()
	defer cancel()

	require.True(t, in.Toggle(id, false).Success)
	require.True(t, in.Toggle(id, false).Success)

	got := drainEvents(events)
	require.Len(t, got, 2, "second identical toggle emits no event")
	assert.Equal(t, extension.EventDisabled, got[0].Type)
	assert.Equal(t, extension.EventActionChanged, got[1].Type)
}

func TestInstallFromWebStore(t *testing.T) {
	t.Parallel()

	payload := crx3Bytes(t, manifestZip(t, "1.4.2", "storage"))
	store := &fakeStore{
		payloads: map[string][]byte{ublockID: payload},
		versions: map[string]string{ublockID: "1.4.2"},
	}
	in, reg, _, _ := newTestInstaller(t, store)

	url := "https://chrome.google.com/webstore/detail/uBlock-Origin/" + ublockID
	res := in.InstallFromWebStore(context.Background(), url, false)
	require.NoError(t, res.Err)
	require.True(t, res.Success)
	assert.Equal(t, ublockID, res.Extension.ID)
	assert.Equal(t, extension.SourceWebStore, res.Extension.Source)
	assert.NotEqual(t, extension.RiskCritical, res.Extension.Permissions.RiskLevel)

	rec, err := reg.Get(ublockID)
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", rec.Version)
}

func TestUpdateAll(t *testing.T) {
	t.Parallel()

	oldPayload := crx3Bytes(t, manifestZip(t, "1.0"))
	newPayload := crx3Bytes(t, manifestZip(t, "2.0"))
	store := &fakeStore{
		payloads: map[string][]byte{ublockID: oldPayload},
		versions: map[string]string{ublockID: "1.0"},
	}
	in, reg, bus, _ := newTestInstaller(t, store)

	res := in.InstallFromWebStore(context.Background(), ublockID, false)
	require.True(t, res.Success)

	// Sideloaded extensions never update.
	local := in.InstallFromBlob(context.Background(), "side.zip", manifestZip(t, "0.1"), false)
	require.True(t, local.Success)

	// Nothing newer: skip everything.
	report := in.UpdateAll(context.Background())
	assert.Empty(t, report.Updated)
	assert.Len(t, report.Skipped, 2)

	store.payloads[ublockID] = newPayload
	store.versions[ublockID] = "2.0"

	events, cancel := bus.Subscribe()
	defer cancel()

	report = in.UpdateAll(context.Background())
	assert.Equal(t, []string{ublockID}, report.Updated)
	assert.Equal(t, []string{local.Extension.ID}, report.Skipped)

	rec, err := reg.Get(ublockID)
	require.NoError(t, err)
	assert.Equal(t, "2.0", rec.Version)

	var sawUpdate bool
	for _, ev := range drainEvents(events) {
		if ev.Type == extension.EventUpdated && ev.ID == ublockID {
			sawUpdate = true
		}
	}
	assert.True(t, sawUpdate)
}

func TestUpdateAllRecordsErrors(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		payloads: map[string][]byte{ublockID: crx3Bytes(t, manifestZip(t, "1.0"))},
		versions: map[string]string{ublockID: "1.0"},
	}
	in, _, _, _ := newTestInstaller(t, store)
	res := in.InstallFromWebStore(context.Background(), ublockID, false)
	require.True(t, res.Success)

	// Version probe starts failing.
	store.versions = map[string]string{}

	report := in.UpdateAll(context.Background())
	assert.Empty(t, report.Updated)
	require.Contains(t, report.Errors, ublockID)
}

func TestInstallPreservesPinAndEnabledAcrossUpdate(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		payloads: map[string][]byte{ublockID: crx3Bytes(t, manifestZip(t, "1.0"))},
	}
	in, reg, _, _ := newTestInstaller(t, store)
	res := in.InstallFromWebStore(context.Background(), ublockID, false)
	require.True(t, res.Success)
	installedAt := res.Extension.InstalledAt

	require.True(t, in.SetPinned(ublockID, true).Success)
	require.True(t, in.Toggle(ublockID, false).Success)

	time.Sleep(5 * time.Millisecond)
	store.payloads[ublockID] = crx3Bytes(t, manifestZip(t, "2.0"))
	res = in.InstallFromWebStore(context.Background(), ublockID, false)
	require.True(t, res.Success)

	rec, err := reg.Get(ublockID)
	require.NoError(t, err)
	assert.Equal(t, "2.0", rec.Version)
	assert.True(t, rec.Pinned)
	assert.False(t, rec.Enabled)
	assert.Equal(t, installedAt, rec.InstalledAt, "install time survives updates")
}
