// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	"sync"
	"time"
)

// EventType enumerates lifecycle notifications emitted to the shell.
type EventType string

const (
	EventInstalled   EventType = "extension.installed"
	EventUninstalled EventType = "extension.uninstalled"
	EventUpdated     EventType = "extension.updated"
	EventEnabled     EventType = "extension.enabled"
	EventDisabled    EventType = "extension.disabled"
	EventPinned      EventType = "extension.pinned"
	EventUnpinned    EventType = "extension.unpinned"

	// EventActionChanged fires whenever the toolbar action list may have
	// changed; subscribers re-query ListActions.
	EventActionChanged EventType = "browser-action-changed"

	// EventActionClicked and EventActionPopup carry action dispatches to
	// the shell, which runs the extension background context.
	EventActionClicked EventType = "browser-action-clicked"
	EventActionPopup   EventType = "browser-action-popup"
)

// Event carries one lifecycle change. Extension is nil for uninstalls,
// where only the id survives.
type Event struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Extension *Record   `json:"extension,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Popup fields are set only for EventActionPopup.
	PopupPath string `json:"popupPath,omitempty"`
	Anchor    *Rect  `json:"anchor,omitempty"`
}

// Bus fans lifecycle events out to subscribers. Each subscriber gets its
// own buffered channel; a subscriber that falls behind loses events rather
// than blocking publishers, but events it does receive arrive in publish
// order.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns an event channel and a cancel func. Cancel closes the
// channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
