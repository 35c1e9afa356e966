// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package provider_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/peersky-browser/peersky/internal/provider"
)

func TestHealthTrackerStartsHealthy(t *testing.T) {
	t.Parallel()

	h := provider.NewHealthTracker(time.Minute)
	assert.True(t, h.IsHealthy())
	assert.Zero(t, h.FailureCount())
}

func TestHealthTrackerCooldownWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	h := provider.NewHealthTracker(time.Minute)
	h.SetNowFunc(func() time.Time { return now })

	h.RecordFailure()
	assert.False(t, h.IsHealthy())
	assert.EqualValues(t, 1, h.FailureCount())

	// Just short of the cooldown, still out of rotation.
	now = now.Add(time.Minute - time.Second)
	assert.False(t, h.IsHealthy())

	// Cooldown elapsed, eligible for a retry.
	now = now.Add(time.Second)
	assert.True(t, h.IsHealthy())
}

func TestHealthTrackerSuccessRestores(t *testing.T) {
	t.Parallel()

	h := provider.NewHealthTracker(time.Hour)
	h.RecordFailure()
	assert.False(t, h.IsHealthy())

	h.RecordSuccess()
	assert.True(t, h.IsHealthy())
	assert.EqualValues(t, 1, h.FailureCount())
}

func TestHealthTrackerDefaultCooldown(t *testing.T) {
	t.Parallel()

	h := provider.NewHealthTracker(0)
	now := time.Now()
	h.SetNowFunc(func() time.Time { return now })

	h.RecordFailure()
	assert.False(t, h.IsHealthy())

	now = now.Add(provider.DefaultHealthCooldown)
	assert.True(t, h.IsHealthy())
}
