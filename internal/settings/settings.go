// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package settings holds the user-facing browser preferences behind the
// bridge: theme, search engine, clock, wallpaper, tab layout. Values
// persist as one JSON file and every change fans out to subscribed
// documents.
package settings

import (
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peersky-browser/peersky/internal/store"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Setting keys. The store rejects writes outside this set.
const (
	KeyTheme        = "theme"
	KeySearchEngine = "searchEngine"
	KeyShowClock    = "showClock"
	KeyWallpaper    = "wallpaper"
	KeyVerticalTabs = "verticalTabs"
)

// Change event types, one per key plus the lifecycle events the chrome
// pages listen for.
const (
	EventThemeChanged        EventType = "theme-changed"
	EventSearchEngineChanged EventType = "search-engine-changed"
	EventShowClockChanged    EventType = "show-clock-changed"
	EventWallpaperChanged    EventType = "wallpaper-changed"
	EventVerticalTabsChanged EventType = "vertical-tabs-changed"
	EventReset               EventType = "settings-reset"
	EventReloadAfterCache    EventType = "reload-ui-after-cache"
)

// maxWallpaperBytes caps uploaded wallpaper images.
const maxWallpaperBytes = 10 << 20

var changeEvents = map[string]EventType{
	KeyTheme:        EventThemeChanged,
	KeySearchEngine: EventSearchEngineChanged,
	KeyShowClock:    EventShowClockChanged,
	KeyWallpaper:    EventWallpaperChanged,
	KeyVerticalTabs: EventVerticalTabsChanged,
}

func defaults() map[string]any {
	return map[string]any{
		KeyTheme:        "default",
		KeySearchEngine: "duckduckgo",
		KeyShowClock:    true,
		KeyWallpaper:    "",
		KeyVerticalTabs: false,
	}
}

// Hooks are the shell-side operations the settings page triggers but the
// store cannot perform itself. Nil hooks are no-ops.
type Hooks struct {
	// ClearCache wipes the browsing session's HTTP cache.
	ClearCache func() error
	// ResetP2P drops protocol resolution caches (IPNS, ENS).
	ResetP2P func()
}

// Store is the persisted settings map. All mutations write through
// atomically before the change event fires.
type Store struct {
	mu     sync.Mutex
	path   string
	dir    string
	values map[string]any
	bus    *Bus
	hooks  Hooks
}

// Open loads settings from path, overlaying defaults. Missing or corrupt
// files start from defaults. Uploaded wallpapers land next to the file.
func Open(path string, hooks Hooks) *Store {
	s := &Store{
		path:   path,
		dir:    filepath.Dir(path),
		values: defaults(),
		bus:    NewBus(),
		hooks:  hooks,
	}

	var persisted map[string]any
	if err := store.LoadJSON(path, &persisted, 0); err == nil {
		for key, val := range persisted {
			if _, known := changeEvents[key]; known {
				s.values[key] = val
			}
		}
	}
	return s
}

// Subscribe registers a listener for change events. The returned cancel
// must be called when the document closes.
func (s *Store) Subscribe() (<-chan Event, func()) {
	return s.bus.Subscribe()
}

// Bus exposes the change event bus so the HTTP surface can fan events
// out to shell subscribers.
func (s *Store) Bus() *Bus {
	return s.bus
}

// GetAll returns a copy of every setting.
func (s *Store) GetAll() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Get returns one setting. Unknown keys are invalid, not empty.
func (s *Store) Get(key string) (any, error) {
	if _, known := changeEvents[key]; !known {
		return nil, pskyerr.Errorf(pskyerr.CodeSettingsKeyInvalid, "unknown setting %q", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

// Set validates, persists, and announces a new value for key.
func (s *Store) Set(key string, value any) error {
	event, known := changeEvents[key]
	if !known {
		return pskyerr.Errorf(pskyerr.CodeSettingsKeyInvalid, "unknown setting %q", key)
	}
	normalized, err := normalizeValue(key, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.values[key] = normalized
	err = s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.bus.Publish(Event{Type: event, Key: key, Value: normalized})
	return nil
}

// normalizeValue enforces the per-key value type. JSON transport turns
// booleans into bool and strings into string already; anything else is a
// caller bug.
func normalizeValue(key string, value any) (any, error) {
	switch key {
	case KeyShowClock, KeyVerticalTabs:
		b, ok := value.(bool)
		if !ok {
			return nil, pskyerr.Errorf(pskyerr.CodeSettingsKeyInvalid, "setting %q wants a boolean, got %T", key, value)
		}
		return b, nil
	default:
		str, ok := value.(string)
		if !ok {
			return nil, pskyerr.Errorf(pskyerr.CodeSettingsKeyInvalid, "setting %q wants a string, got %T", key, value)
		}
		return str, nil
	}
}

// Reset restores defaults, persists, and announces the reset.
func (s *Store) Reset() error {
	s.mu.Lock()
	s.values = defaults()
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.bus.Publish(Event{Type: EventReset})
	return nil
}

// UploadWallpaper stores an uploaded image next to the settings file and
// points the wallpaper setting at it.
func (s *Store) UploadWallpaper(name string, data []byte) (string, error) {
	if len(data) == 0 || len(data) > maxWallpaperBytes {
		return "", pskyerr.Errorf(pskyerr.CodeSettingsUploadLimit,
			"wallpaper must be between 1 byte and %d bytes, got %d", maxWallpaperBytes, len(data))
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif":
	default:
		return "", pskyerr.Errorf(pskyerr.CodeSettingsUploadLimit, "unsupported wallpaper type %q", ext)
	}

	dest := filepath.Join(s.dir, "wallpaper"+ext)
	if err := store.WriteFileAtomic(dest, data, 0o600); err != nil {
		return "", pskyerr.Wrap(err, pskyerr.CodeSettingsPersistIO, "storing wallpaper")
	}
	if err := s.Set(KeyWallpaper, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// ClearBrowserCache runs the shell's cache hook and tells open chrome
// pages to reload.
func (s *Store) ClearBrowserCache() error {
	if s.hooks.ClearCache != nil {
		if err := s.hooks.ClearCache(); err != nil {
			return pskyerr.Wrap(err, pskyerr.CodeSettingsPersistIO, "clearing browser cache")
		}
	}
	s.bus.Publish(Event{Type: EventReloadAfterCache})
	return nil
}

// ResetP2P drops the protocol resolution caches.
func (s *Store) ResetP2P() {
	if s.hooks.ResetP2P != nil {
		s.hooks.ResetP2P()
	}
}

func (s *Store) persistLocked() error {
	if err := store.WriteJSONAtomic(s.path, s.values, 0o600); err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeSettingsPersistIO, "writing settings")
	}
	return nil
}

// Theme returns the current theme name, for callers that only render.
func (s *Store) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if theme, ok := s.values[KeyTheme].(string); ok {
		return theme
	}
	return fmt.Sprint(s.values[KeyTheme])
}
