// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package store

import (
	"context"
	"time"
)

// Bookmark is a single saved page.
type Bookmark struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Favicon   string    `json:"favicon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// BookmarkStore manages the bookmark collection. Implementations must be
// safe for concurrent use.
type BookmarkStore interface {
	Add(ctx context.Context, b *Bookmark) error
	List(ctx context.Context) ([]*Bookmark, error)
	Delete(ctx context.Context, url string) error
	Close() error
}
