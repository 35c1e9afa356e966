// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/peersky-browser/peersky/internal/store"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// catalogSnapshot is the on-disk shape of the extension catalog.
type catalogSnapshot struct {
	Extensions map[string]*Record `json:"extensions"`
	PinOrder   []string           `json:"pinOrder"`
}

// Registry is the durable extension catalog. All mutations flow through it
// (single-writer discipline); every mutation persists atomically before
// returning.
type Registry struct {
	mu       sync.RWMutex
	path     string
	records  map[string]*Record
	pinOrder []string
}

// OpenRegistry loads the catalog at path. A missing, corrupt, or oversized
// file yields an empty catalog rather than an error.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{
		path:    path,
		records: make(map[string]*Record),
	}

	var snap catalogSnapshot
	err := store.LoadJSON(path, &snap, 0)
	switch {
	case err == nil:
		if snap.Extensions != nil {
			r.records = snap.Extensions
		}
		r.pinOrder = snap.PinOrder
	case errors.Is(err, store.ErrAbsent):
		// Fresh start.
	default:
		return nil, err
	}

	return r, nil
}

// persistLocked writes the catalog snapshot. Callers hold the write lock.
func (r *Registry) persistLocked() error {
	snap := catalogSnapshot{Extensions: r.records, PinOrder: r.pinOrder}
	if err := store.WriteJSONAtomic(r.path, snap, 0o600); err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeExtensionRegistryIO, "persisting extension catalog")
	}
	return nil
}

// List returns all records in stable UI order: pinned by pin index, then
// unpinned by install time ascending.
func (r *Registry) List() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []*Record {
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sortRecords(out, r.pinIndexLocked())
	return out
}

func (r *Registry) pinIndexLocked() map[string]int {
	idx := make(map[string]int, len(r.pinOrder))
	for i, id := range r.pinOrder {
		idx[id] = i
	}
	return idx
}

// ListUser returns non-system records; ListSystem returns the rest. The UI
// surfaces the two groups separately.
func (r *Registry) ListUser() []*Record {
	return filterRecords(r.List(), func(rec *Record) bool { return !rec.IsSystem })
}

func (r *Registry) ListSystem() []*Record {
	return filterRecords(r.List(), func(rec *Record) bool { return rec.IsSystem })
}

func filterRecords(records []*Record, keep func(*Record) bool) []*Record {
	out := records[:0:0]
	for _, rec := range records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Get returns the record for id.
func (r *Registry) Get(id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, pskyerr.Errorf(pskyerr.CodeExtensionNotFound, "extension %q not found", id)
	}
	return rec, nil
}

// Upsert inserts or replaces a record keyed by its id.
func (r *Registry) Upsert(rec *Record) error {
	if !rec.Valid() {
		return pskyerr.New(pskyerr.CodeExtensionInstallInvalid, "record is missing required fields",
			pskyerr.FieldExtension(rec.ID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.ID] = rec
	return r.persistLocked()
}

// Remove deletes a record and its pin entry. Removing an absent id is a
// no-op so uninstall stays idempotent.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return nil
	}
	delete(r.records, id)
	r.pinOrder = slices.DeleteFunc(r.pinOrder, func(p string) bool { return p == id })
	return r.persistLocked()
}

// SetEnabled flips the enabled flag. It reports whether the value changed
// so callers can suppress duplicate events.
func (r *Registry) SetEnabled(id string, enabled bool) (changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return false, pskyerr.Errorf(pskyerr.CodeExtensionNotFound, "extension %q not found", id)
	}
	if rec.Enabled == enabled {
		return false, nil
	}
	rec.Enabled = enabled
	return true, r.persistLocked()
}

// SetPinned pins or unpins an extension's browser action. Pinning appends
// to the pin order; unpinning removes the entry.
func (r *Registry) SetPinned(id string, pinned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return pskyerr.Errorf(pskyerr.CodeExtensionNotFound, "extension %q not found", id)
	}
	if rec.Pinned == pinned {
		return nil
	}
	rec.Pinned = pinned
	if pinned {
		if !slices.Contains(r.pinOrder, id) {
			r.pinOrder = append(r.pinOrder, id)
		}
	} else {
		r.pinOrder = slices.DeleteFunc(r.pinOrder, func(p string) bool { return p == id })
	}
	return r.persistLocked()
}

// Cleanup drops records whose directory no longer exists and records
// missing required fields. Run at startup; returns the removed ids.
func (r *Registry) Cleanup() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, rec := range r.records {
		if !rec.Valid() {
			slog.Warn("dropping invalid extension record", "id", id)
			removed = append(removed, id)
			continue
		}
		if _, err := os.Stat(rec.InstalledPath); err != nil {
			slog.Warn("dropping extension record with missing directory",
				"id", id, "path", rec.InstalledPath)
			removed = append(removed, id)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	for _, id := range removed {
		delete(r.records, id)
		r.pinOrder = slices.DeleteFunc(r.pinOrder, func(p string) bool { return p == id })
	}
	return removed, r.persistLocked()
}
