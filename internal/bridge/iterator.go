// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package bridge

import (
	"context"
	"sync"
	"time"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// iteratorIdleTimeout releases a handle no next/return call has touched.
// Documents that stop pulling a stream would otherwise pin the producer
// forever.
const iteratorIdleTimeout = 2 * time.Minute

// Iterator is a privileged-side stream a document drives one value at a
// time through its integer handle.
type Iterator interface {
	// Next returns the next value. done means the stream is exhausted;
	// the value accompanying done is ignored.
	Next(ctx context.Context) (value any, done bool, err error)
	// Close releases the producer. Safe to call more than once.
	Close() error
}

// StepResult is what a next call hands back across the bridge.
type StepResult struct {
	Value any  `json:"value,omitempty"`
	Done  bool `json:"done"`
}

type iteratorSlot struct {
	it    Iterator
	timer *time.Timer
}

// iteratorTable owns a document's live handles. Handles are plain
// integers scoped to the document; they never cross documents.
type iteratorTable struct {
	mu    sync.Mutex
	next  int
	slots map[int]*iteratorSlot
	idle  time.Duration
}

func newIteratorTable(idle time.Duration) *iteratorTable {
	if idle <= 0 {
		idle = iteratorIdleTimeout
	}
	return &iteratorTable{slots: make(map[int]*iteratorSlot), idle: idle, next: 1}
}

// add registers it and returns its handle.
func (t *iteratorTable) add(it Iterator) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle := t.next
	t.next++
	slot := &iteratorSlot{it: it}
	slot.timer = time.AfterFunc(t.idle, func() { t.release(handle) })
	t.slots[handle] = slot
	return handle
}

// step advances the iterator behind handle. An exhausted iterator is
// released before the done result returns.
func (t *iteratorTable) step(ctx context.Context, handle int) (StepResult, error) {
	t.mu.Lock()
	slot, ok := t.slots[handle]
	if !ok {
		t.mu.Unlock()
		return StepResult{}, pskyerr.Errorf(pskyerr.CodeBridgeIteratorExpired, "no iterator with handle %d", handle)
	}
	slot.timer.Reset(t.idle)
	t.mu.Unlock()

	value, done, err := slot.it.Next(ctx)
	if err != nil {
		t.release(handle)
		return StepResult{}, err
	}
	if done {
		t.release(handle)
		return StepResult{Done: true}, nil
	}
	return StepResult{Value: value}, nil
}

// release closes and forgets a handle. Unknown handles are a no-op so
// double return calls stay harmless.
func (t *iteratorTable) release(handle int) {
	t.mu.Lock()
	slot, ok := t.slots[handle]
	if ok {
		delete(t.slots, handle)
	}
	t.mu.Unlock()

	if ok {
		slot.timer.Stop()
		_ = slot.it.Close()
	}
}

// releaseAll drops every handle; called when the document closes.
func (t *iteratorTable) releaseAll() {
	t.mu.Lock()
	slots := t.slots
	t.slots = make(map[int]*iteratorSlot)
	t.mu.Unlock()

	for _, slot := range slots {
		slot.timer.Stop()
		_ = slot.it.Close()
	}
}
