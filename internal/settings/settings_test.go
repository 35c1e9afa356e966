// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package settings_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peersky-browser/peersky/internal/settings"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

func openStore(t *testing.T) (*settings.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	return settings.Open(path, settings.Hooks{}), path
}

func drain(ch <-chan settings.Event) []settings.Event {
	var events []settings.Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)
	all := s.GetAll()
	assert.Equal(t, "default", all[settings.KeyTheme])
	assert.Equal(t, "duckduckgo", all[settings.KeySearchEngine])
	assert.Equal(t, true, all[settings.KeyShowClock])
	assert.Equal(t, false, all[settings.KeyVerticalTabs])
}

func TestSetPersistsAndNotifies(t *testing.T) {
	t.Parallel()

	s, path := openStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Set(settings.KeyTheme, "dark"))
	require.NoError(t, s.Set(settings.KeyShowClock, false))

	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, settings.EventThemeChanged, events[0].Type)
	assert.Equal(t, "dark", events[0].Value)
	assert.Equal(t, settings.EventShowClockChanged, events[1].Type)

	reopened := settings.Open(path, settings.Hooks{})
	theme, err := reopened.Get(settings.KeyTheme)
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)
	clock, err := reopened.Get(settings.KeyShowClock)
	require.NoError(t, err)
	assert.Equal(t, false, clock)
}

func TestSetRejectsUnknownKeyAndWrongType(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	err := s.Set("fontSize", 14)
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))

	err = s.Set(settings.KeyShowClock, "yes")
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))

	err = s.Set(settings.KeyTheme, 7)
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))

	_, err = s.Get("fontSize")
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))
}

func TestCorruptFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	s := settings.Open(path, settings.Hooks{})
	assert.Equal(t, "default", s.Theme())
}

func TestUnknownPersistedKeysIgnored(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark","legacyKey":1}`), 0o600))

	s := settings.Open(path, settings.Hooks{})
	assert.Equal(t, "dark", s.Theme())
	_, err := s.Get("legacyKey")
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	t.Parallel()

	s, path := openStore(t)
	require.NoError(t, s.Set(settings.KeyTheme, "dark"))

	ch, cancel := s.Subscribe()
	defer cancel()
	require.NoError(t, s.Reset())

	events := drain(ch)
	require.Len(t, events, 1)
	assert.Equal(t, settings.EventReset, events[0].Type)

	reopened := settings.Open(path, settings.Hooks{})
	assert.Equal(t, "default", reopened.Theme())
}

func TestUploadWallpaper(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	dest, err := s.UploadWallpaper("beach.png", []byte("not-a-real-png"))
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "not-a-real-png", string(data))

	wallpaper, err := s.Get(settings.KeyWallpaper)
	require.NoError(t, err)
	assert.Equal(t, dest, wallpaper)

	events := drain(ch)
	require.Len(t, events, 1)
	assert.Equal(t, settings.EventWallpaperChanged, events[0].Type)
}

func TestUploadWallpaperRejectsBadInput(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)

	_, err := s.UploadWallpaper("beach.png", nil)
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))

	_, err = s.UploadWallpaper("beach.png", make([]byte, (10<<20)+1))
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))

	_, err = s.UploadWallpaper("script.svg", []byte("<svg/>"))
	require.Error(t, err)
	assert.True(t, pskyerr.IsInvalidInput(err))
}

func TestClearBrowserCacheRunsHookAndNotifies(t *testing.T) {
	t.Parallel()

	cleared := false
	path := filepath.Join(t.TempDir(), "settings.json")
	s := settings.Open(path, settings.Hooks{ClearCache: func() error {
		cleared = true
		return nil
	}})

	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.ClearBrowserCache())
	assert.True(t, cleared)

	events := drain(ch)
	require.Len(t, events, 1)
	assert.Equal(t, settings.EventReloadAfterCache, events[0].Type)
}

func TestResetP2PRunsHook(t *testing.T) {
	t.Parallel()

	called := false
	path := filepath.Join(t.TempDir(), "settings.json")
	s := settings.Open(path, settings.Hooks{ResetP2P: func() { called = true }})

	s.ResetP2P()
	assert.True(t, called)
}
