// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package store provides the daemon's persistence primitives: atomic JSON
// file snapshots for the small catalogs (extension registry, permission
// decisions, archive log) and a SQLite-backed bookmark store.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// ErrAbsent is returned by LoadJSON when the file does not exist, is larger
// than the caller's cap, or does not parse. Callers treat all three the same
// way: start from empty state.
var ErrAbsent = errors.New("store: file absent or unusable")

// WriteJSONAtomic marshals v and writes it to path via a temp file + rename
// so readers never observe a partial write. The parent directory is created
// if missing.
func WriteJSONAtomic(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeStoreIO, "marshalling snapshot", pskyerr.Field("path", path))
	}
	return WriteFileAtomic(path, data, perm)
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by an atomic rename.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeStoreIO, "creating data directory", pskyerr.Field("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeStoreIO, "creating temp file", pskyerr.Field("path", path))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return pskyerr.Wrap(err, pskyerr.CodeStoreIO, "writing temp file", pskyerr.Field("path", path))
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return pskyerr.Wrap(err, pskyerr.CodeStoreIO, "setting temp file mode", pskyerr.Field("path", path))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return pskyerr.Wrap(err, pskyerr.CodeStoreIO, "closing temp file", pskyerr.Field("path", path))
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return pskyerr.Wrap(err, pskyerr.CodeStoreIO, "replacing snapshot", pskyerr.Field("path", path))
	}
	return nil
}

// LoadJSON reads path into v. A missing file, a file over maxSize bytes, or
// a file that fails to parse all yield ErrAbsent; the catalog owners fail
// closed on corrupt state by starting empty. maxSize <= 0 means unbounded.
func LoadJSON(path string, v any, maxSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrAbsent
		}
		return pskyerr.Wrap(err, pskyerr.CodeStoreIO, "stat snapshot", pskyerr.Field("path", path))
	}

	if maxSize > 0 && info.Size() > maxSize {
		slog.Warn("persisted file exceeds size cap; treating as absent",
			"path", path, "size", info.Size(), "cap", maxSize)
		return ErrAbsent
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrAbsent
		}
		return pskyerr.Wrap(err, pskyerr.CodeStoreIO, "reading snapshot", pskyerr.Field("path", path))
	}

	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("persisted file is corrupt; treating as absent", "path", path, "error", err)
		return ErrAbsent
	}
	return nil
}
