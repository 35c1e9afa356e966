// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package settings

import "sync"

// EventType names one settings change notification.
type EventType string

// Event carries a settings change to subscribed documents. Key and
// Value are empty for lifecycle events like a reset.
type Event struct {
	Type  EventType `json:"type"`
	Key   string    `json:"key,omitempty"`
	Value any       `json:"value,omitempty"`
}

// Bus fans settings events out to subscribers. Slow subscribers drop
// events instead of blocking the writer.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 16)
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

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
