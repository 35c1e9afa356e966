// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package sqlite implements the bookmark store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/peersky-browser/peersky/internal/store"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Compile-time interface check.
var _ store.BookmarkStore = (*BookmarkStore)(nil)

// BookmarkStore implements store.BookmarkStore backed by SQLite.
type BookmarkStore struct {
	db *sql.DB
}

// NewBookmarkStore opens (or creates) a SQLite database at dbPath and
// initialises the bookmarks table.
func NewBookmarkStore(dbPath string) (*BookmarkStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeStoreDatabase, "opening bookmarks db")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, pskyerr.Wrap(err, pskyerr.CodeStoreDatabase, "pinging bookmarks db")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, pskyerr.Wrap(err, pskyerr.CodeStoreDatabase, "migrating bookmarks db")
	}

	return &BookmarkStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS bookmarks (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL DEFAULT '',
	favicon    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bookmarks_created ON bookmarks(created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *BookmarkStore) Close() error {
	return s.db.Close()
}

// Add inserts a bookmark, updating title and favicon when the URL is
// already bookmarked. Records arriving without an ID or timestamp, as
// bridge envelopes do, get both filled in before the insert.
func (s *BookmarkStore) Add(ctx context.Context, b *store.Bookmark) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO bookmarks (id, url, title, favicon, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET title = excluded.title, favicon = excluded.favicon`

	_, err := s.db.ExecContext(ctx, q,
		b.ID, b.URL, b.Title, b.Favicon, b.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeStoreDatabase, "inserting bookmark", pskyerr.Field("url", b.URL))
	}
	return nil
}

func (s *BookmarkStore) List(ctx context.Context) ([]*store.Bookmark, error) {
	const q = `SELECT id, url, title, favicon, created_at FROM bookmarks ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeStoreDatabase, "listing bookmarks")
	}
	defer rows.Close()

	var out []*store.Bookmark
	for rows.Next() {
		var b store.Bookmark
		var createdAt string
		if err := rows.Scan(&b.ID, &b.URL, &b.Title, &b.Favicon, &createdAt); err != nil {
			return nil, pskyerr.Wrap(err, pskyerr.CodeStoreDatabase, "scanning bookmark row")
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			b.CreatedAt = t
		}
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeStoreDatabase, "iterating bookmark rows")
	}
	return out, nil
}

func (s *BookmarkStore) Delete(ctx context.Context, url string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE url = ?`, url)
	if err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeStoreDatabase, "deleting bookmark", pskyerr.Field("url", url))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeStoreDatabase, "reading delete result")
	}
	if affected == 0 {
		return pskyerr.Errorf(pskyerr.CodeStoreNotFound, "bookmark %q not found", url)
	}
	return nil
}
