// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package config

import (
	"sync"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Partition names are fixed at the boundary with the rendering engine.
const (
	// PersistentPartition is the named partition used when session.persist
	// is enabled.
	PersistentPartition = "persist:peersky"
	// DefaultPartition is the rendering engine's default (non-persistent)
	// session.
	DefaultPartition = "default"
)

// SessionPolicy is the single source of truth for which partition browser
// activity uses. It is initialized once at startup and never mutated; all
// components read it through the Partition accessor.
type SessionPolicy struct {
	persist bool
}

var (
	sessionMu     sync.Mutex
	activeSession *SessionPolicy
)

// InitSession installs the process-wide session policy. Calling it twice
// with a different persist value is an invariant violation: the policy must
// be decided once, before any component reads it.
func InitSession(persist bool) (*SessionPolicy, error) {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if activeSession != nil {
		if activeSession.persist != persist {
			return nil, pskyerr.Errorf(pskyerr.CodeSessionPolicyMismatch,
				"session policy already initialized with persist=%t, re-init requested persist=%t",
				activeSession.persist, persist)
		}
		return activeSession, nil
	}

	activeSession = &SessionPolicy{persist: persist}
	return activeSession, nil
}

// Session returns the active policy, defaulting to the non-persistent
// session when InitSession has not run (tests, one-shot CLI commands).
func Session() *SessionPolicy {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if activeSession == nil {
		activeSession = &SessionPolicy{}
	}
	return activeSession
}

// ResetSessionForTest clears the process-wide policy. Test use only.
func ResetSessionForTest() {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	activeSession = nil
}

// Persist reports whether browsing uses the persistent partition.
func (s *SessionPolicy) Persist() bool {
	return s.persist
}

// Partition returns the partition name all components must use.
func (s *SessionPolicy) Partition() string {
	if s.persist {
		return PersistentPartition
	}
	return DefaultPartition
}

// AssertPartition verifies a privileged call is operating on the partition
// the policy selected. A mismatch means some component captured a partition
// name before initialization.
func (s *SessionPolicy) AssertPartition(partition string) error {
	if partition != s.Partition() {
		return pskyerr.Errorf(pskyerr.CodeSessionPolicyMismatch,
			"session partition mismatch: policy selects %q, caller used %q",
			s.Partition(), partition)
	}
	return nil
}
