// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package protocol

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// resolveCache is a bounded TTL cache for name resolutions (ipns name→CID,
// ENS name→contenthash). When full, the entry closest to expiry is evicted;
// with uniform TTLs that approximates least-recently-written.
type resolveCache struct {
	inner      *gocache.Cache
	maxEntries int
	ttl        time.Duration
}

func newResolveCache(ttl time.Duration, maxEntries int) *resolveCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &resolveCache{
		inner:      gocache.New(ttl, 2*ttl),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

func (c *resolveCache) Get(key string) (string, bool) {
	v, ok := c.inner.Get(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *resolveCache) Set(key, value string) {
	if c.inner.ItemCount() >= c.maxEntries {
		c.evictOne()
	}
	c.inner.SetDefault(key, value)
}

func (c *resolveCache) evictOne() {
	var victim string
	var soonest int64
	for key, item := range c.inner.Items() {
		if victim == "" || item.Expiration < soonest {
			victim = key
			soonest = item.Expiration
		}
	}
	if victim != "" {
		c.inner.Delete(victim)
	}
}

// Reset drops every cached resolution. Wired to the session policy's
// cache-clear operation.
func (c *resolveCache) Reset() {
	c.inner.Flush()
}
