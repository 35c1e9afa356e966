// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package provider

import (
	"sync"
	"time"
)

// DefaultHealthCooldown is how long a failed backend stays out of
// rotation before it may be retried.
const DefaultHealthCooldown = 30 * time.Second

// HealthTracker tracks one backend's availability. A backend is healthy
// until RecordFailure; after that it is unavailable for a cooldown
// window, then eligible again so recovery can be observed.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time
}

// NewHealthTracker starts healthy. Non-positive cooldowns fall back to
// the default.
func NewHealthTracker(cooldown time.Duration) *HealthTracker {
	if cooldown <= 0 {
		cooldown = DefaultHealthCooldown
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}
}

// IsHealthy reports healthy, or failed with the cooldown elapsed.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// FailureCount returns the cumulative failure count.
func (h *HealthTracker) FailureCount() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.failureCount
}

// SetNowFunc overrides the time source. Test use only.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}
