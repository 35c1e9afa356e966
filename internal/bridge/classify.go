// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package bridge mediates every call a rendering document makes into the
// privileged process. Each document is classified by its URL once, at
// registration; the class fixes the RPC surface for the document's whole
// lifetime. A capability outside the class is an undefined name, not a
// runtime denial.
package bridge

import (
	"net/url"
	"strings"
)

// Class is a document's privilege tier, derived from its URL.
type Class string

const (
	ClassSettings   Class = "settings"
	ClassExtensions Class = "extensions"
	ClassHome       Class = "home"
	ClassBookmarks  Class = "bookmarks"
	ClassTabs       Class = "tabs"
	ClassP2P        Class = "p2p"
	ClassInternal   Class = "internal"
	ClassExternal   Class = "external"
)

// Classifier maps document URLs onto classes. The trusted list extends
// the internal class to a few known external hosts.
type Classifier struct {
	trusted map[string]bool
}

func NewClassifier(trustedDomains []string) *Classifier {
	trusted := make(map[string]bool, len(trustedDomains))
	for _, d := range trustedDomains {
		trusted[strings.ToLower(d)] = true
	}
	return &Classifier{trusted: trusted}
}

// Classify derives the class for rawURL. Matching is first-match-wins in
// a fixed order; anything unparseable or unmatched is external.
func (c *Classifier) Classify(rawURL string) Class {
	lower := strings.ToLower(strings.TrimSpace(rawURL))

	switch {
	case strings.HasPrefix(lower, "peersky://settings"):
		return ClassSettings
	case strings.HasPrefix(lower, "peersky://extensions"):
		return ClassExtensions
	case strings.HasPrefix(lower, "peersky://home"):
		return ClassHome
	case strings.Contains(lower, "peersky://bookmarks"):
		return ClassBookmarks
	case strings.Contains(lower, "peersky://tabs"):
		return ClassTabs
	}

	u, err := url.Parse(lower)
	if err != nil || u.Scheme == "" {
		return ClassExternal
	}

	switch u.Scheme {
	case "hyper", "ipfs", "ipns":
		return ClassP2P
	case "peersky", "file":
		return ClassInternal
	}
	if c.trusted[u.Hostname()] {
		return ClassInternal
	}
	return ClassExternal
}
