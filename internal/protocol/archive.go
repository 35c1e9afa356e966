// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package protocol

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/peersky-browser/peersky/internal/store"
)

// maxArchiveEntries bounds the log; the oldest entries roll off.
const maxArchiveEntries = 4096

// ArchiveEntry records one successful P2P resolution.
type ArchiveEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Archive is the bounded, ordered log of resolved hyper keys, ipfs CIDs,
// and ENS hashes. Documents read it through the bridge; handlers append.
type Archive struct {
	mu      sync.Mutex
	path    string
	entries []ArchiveEntry
	entropy *rand.Rand
}

// OpenArchive loads the archive log at path. Missing or corrupt files
// start the log empty.
func OpenArchive(path string) *Archive {
	a := &Archive{
		path:    path,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := store.LoadJSON(path, &a.entries, 0); err != nil {
		a.entries = nil
	}
	if len(a.entries) > maxArchiveEntries {
		a.entries = a.entries[len(a.entries)-maxArchiveEntries:]
	}
	return a
}

// Append records a resolution. Persistence failures are logged, not
// surfaced; the archive is an observability aid, never a request blocker.
func (a *Archive) Append(name, key, url string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now().UTC()
	entry := ArchiveEntry{
		ID:        ulid.MustNew(ulid.Timestamp(now), a.entropy).String(),
		Name:      name,
		Key:       key,
		URL:       url,
		Timestamp: now,
	}
	a.entries = append(a.entries, entry)
	if len(a.entries) > maxArchiveEntries {
		a.entries = a.entries[len(a.entries)-maxArchiveEntries:]
	}

	if err := store.WriteJSONAtomic(a.path, a.entries, 0o600); err != nil {
		slog.Warn("archive persist failed", "path", a.path, "error", err)
	}
}

// Entries returns a copy of the log, oldest first.
func (a *Archive) Entries() []ArchiveEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ArchiveEntry, len(a.entries))
	copy(out, a.entries)
	return out
}
