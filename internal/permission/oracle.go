// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package permission decides runtime capability requests (geolocation,
// camera access, notifications) per origin. Decisions come from a cache
// first and a user prompt second, and are persisted as a single bounded
// JSON file.
package permission

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/peersky-browser/peersky/internal/store"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// The closed prompt set. Any permission outside it denies immediately,
// with no prompt and no cache entry.
const (
	Geolocation   = "geolocation"
	Media         = "media"
	Notifications = "notifications"
	MIDI          = "midi"
	PointerLock   = "pointerLock"
	Fullscreen    = "fullscreen"
)

var promptSet = map[string]bool{
	Geolocation:   true,
	Media:         true,
	Notifications: true,
	MIDI:          true,
	PointerLock:   true,
	Fullscreen:    true,
}

// IsPromptable reports whether permission is in the prompt set.
func IsPromptable(permission string) bool {
	return promptSet[permission]
}

const (
	maxEntries    = 500
	maxFileBytes  = 512 << 10
	persistDelay  = 200 * time.Millisecond
	unknownOrigin = "unknown"
)

var originPattern = regexp.MustCompile(`^https?://[^/]+$`)

// PromptResult is the outcome of a user prompt.
type PromptResult int

const (
	ResultBlock PromptResult = iota
	ResultAllowOnce
	ResultAllowAlways
)

// Prompter shows the permission dialog and blocks until the user
// dismisses it. Implementations live in the shell; the oracle treats a
// returned error or an expired context as a denial.
type Prompter interface {
	Prompt(ctx context.Context, origin, permission string) (PromptResult, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, origin, permission string) (PromptResult, error)

func (f PrompterFunc) Prompt(ctx context.Context, origin, permission string) (PromptResult, error) {
	return f(ctx, origin, permission)
}

type entry struct {
	allowed bool
	durable bool
}

// Oracle caches per-(origin, permission) decisions, bounded to the most
// recent maxEntries, and persists the durable subset with a short
// debounce so bursts of prompt answers coalesce into one write.
type Oracle struct {
	prompter Prompter

	mu      sync.Mutex
	path    string
	entries map[string]entry
	order   []string
	timer   *time.Timer
}

// NewOracle loads persisted decisions from path. Missing, corrupt, or
// over-size files start the oracle empty; entries whose key fails
// validation are discarded on load.
func NewOracle(path string, prompter Prompter) *Oracle {
	o := &Oracle{
		prompter: prompter,
		path:     path,
		entries:  make(map[string]entry),
	}

	var raw map[string]bool
	if err := store.LoadJSON(path, &raw, maxFileBytes); err != nil {
		return o
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if validKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.entries[k] = entry{allowed: raw[k], durable: true}
		o.order = append(o.order, k)
	}
	o.evictLocked()
	return o
}

// validKey accepts "origin|permission" where origin is "unknown" or an
// http(s) origin and permission is in the prompt set.
func validKey(key string) bool {
	origin, permission, ok := strings.Cut(key, "|")
	if !ok {
		return false
	}
	if origin != unknownOrigin && !originPattern.MatchString(origin) {
		return false
	}
	return promptSet[permission]
}

func decisionKey(origin, permission string) string {
	return origin + "|" + permission
}

// NormalizeOrigin reduces a document URL or origin string to the form
// the oracle keys on: "scheme://host[:port]" for http(s), or "unknown"
// for everything else.
func NormalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if originPattern.MatchString(raw) {
		return raw
	}
	for _, scheme := range []string{"http://", "https://"} {
		if rest, ok := strings.CutPrefix(raw, scheme); ok {
			host, _, _ := strings.Cut(rest, "/")
			if host != "" {
				return scheme + host
			}
		}
	}
	return unknownOrigin
}

// Request resolves (origin, permission) to an allow/deny decision. The
// cache short-circuits the prompt; otherwise the prompter runs and the
// answer is cached. Unknown permissions, prompt errors, and expired
// contexts all deny.
func (o *Oracle) Request(ctx context.Context, origin, permission string) bool {
	if !promptSet[permission] {
		return false
	}
	origin = NormalizeOrigin(origin)
	key := decisionKey(origin, permission)

	o.mu.Lock()
	if e, ok := o.entries[key]; ok {
		o.mu.Unlock()
		return e.allowed
	}
	o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false
	}
	result, err := o.prompter.Prompt(ctx, origin, permission)
	if err != nil || ctx.Err() != nil {
		return false
	}

	switch result {
	case ResultAllowAlways:
		o.record(key, true, true)
		return true
	case ResultAllowOnce:
		o.record(key, true, false)
		return true
	default:
		o.record(key, false, true)
		return false
	}
}

// Decide records a shell-mediated prompt answer for (origin, permission)
// and returns the resulting allow decision. It is the non-blocking
// counterpart to Request for callers that run the dialog themselves.
// Unknown permissions deny without recording.
func (o *Oracle) Decide(origin, permission string, result PromptResult) bool {
	if !promptSet[permission] {
		return false
	}
	key := decisionKey(NormalizeOrigin(origin), permission)
	switch result {
	case ResultAllowAlways:
		o.record(key, true, true)
		return true
	case ResultAllowOnce:
		o.record(key, true, false)
		return true
	default:
		o.record(key, false, true)
		return false
	}
}

// Cached returns the cached decision for (origin, permission) without
// prompting.
func (o *Oracle) Cached(origin, permission string) (allowed, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[decisionKey(NormalizeOrigin(origin), permission)]
	return e.allowed, ok
}

func (o *Oracle) record(key string, allowed, durable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.entries[key]; !exists {
		o.order = append(o.order, key)
	}
	o.entries[key] = entry{allowed: allowed, durable: durable}
	o.evictLocked()

	if durable {
		o.schedulePersistLocked()
	}
}

// evictLocked drops the oldest entries once the cache exceeds its bound.
func (o *Oracle) evictLocked() {
	for len(o.order) > maxEntries {
		oldest := o.order[0]
		o.order = o.order[1:]
		delete(o.entries, oldest)
	}
}

func (o *Oracle) schedulePersistLocked() {
	if o.timer != nil {
		return
	}
	o.timer = time.AfterFunc(persistDelay, func() {
		if err := o.Flush(); err != nil {
			slog.Warn("permission persist failed", "path", o.path, "error", err)
		}
	})
}

// Flush writes the durable decisions out immediately and cancels any
// pending debounced write.
func (o *Oracle) Flush() error {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	snapshot := o.snapshotLocked()
	path := o.path
	o.mu.Unlock()

	if err := store.WriteJSONAtomic(path, snapshot, 0o600); err != nil {
		return pskyerr.Wrap(err, pskyerr.CodePermissionPersistIO, "writing permission decisions")
	}
	return nil
}

// snapshotLocked collects the durable entries in insertion order.
// Allow-once answers stay cache-only.
func (o *Oracle) snapshotLocked() map[string]bool {
	out := make(map[string]bool, len(o.entries))
	for _, key := range o.order {
		if e := o.entries[key]; e.durable {
			out[key] = e.allowed
		}
	}
	return out
}

// Reset flushes any pending write, then clears both the cache and the
// persisted file.
func (o *Oracle) Reset() error {
	if err := o.Flush(); err != nil {
		return err
	}

	o.mu.Lock()
	o.entries = make(map[string]entry)
	o.order = nil
	path := o.path
	o.mu.Unlock()

	if err := store.WriteJSONAtomic(path, map[string]bool{}, 0o600); err != nil {
		return pskyerr.Wrap(err, pskyerr.CodePermissionPersistIO, "clearing permission decisions")
	}
	return nil
}
