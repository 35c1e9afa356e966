// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	"crypto/sha256"
	"regexp"
	"sort"
	"time"
)

// Source identifies where an extension was installed from.
type Source string

const (
	SourcePreinstalled Source = "preinstalled"
	SourceWebStore     Source = "webstore"
	SourceLocal        Source = "local"
	SourceP2P          Source = "p2p"
)

// RiskLevel buckets a validation risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Risk level thresholds over the summed permission and host-pattern weights.
const (
	riskMediumThreshold   = 15
	riskHighThreshold     = 30
	riskCriticalThreshold = 50
)

// LevelForScore buckets a risk score into a RiskLevel.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= riskCriticalThreshold:
		return RiskCritical
	case score >= riskHighThreshold:
		return RiskHigh
	case score >= riskMediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// idRe matches the 32-character Chrome extension id alphabet (a-p).
var idRe = regexp.MustCompile(`^[a-p]{32}$`)

// ValidID reports whether id is a well-formed extension identifier.
func ValidID(id string) bool {
	return idRe.MatchString(id)
}

// DeriveID produces a deterministic 32-char a-p identifier from arbitrary
// bytes. Mirrors Chrome's scheme of mapping the first 16 bytes of a SHA-256
// digest through the a-p nibble alphabet; used for sideloaded packages that
// carry no Web Store id.
func DeriveID(seed []byte) string {
	sum := sha256.Sum256(seed)
	out := make([]byte, 32)
	for i := 0; i < 16; i++ {
		out[2*i] = 'a' + (sum[i] >> 4)
		out[2*i+1] = 'a' + (sum[i] & 0x0f)
	}
	return string(out)
}

// BrowserAction is the toolbar surface an extension declares.
type BrowserAction struct {
	Title     string `json:"title"`
	IconPath  string `json:"iconPath,omitempty"`
	PopupPath string `json:"popupPath,omitempty"`
	BadgeText string `json:"badgeText,omitempty"`
}

// PermissionSummary captures the validation result persisted with a record.
type PermissionSummary struct {
	Requested       []string  `json:"requested"`
	HostPermissions []string  `json:"hostPermissions"`
	RiskScore       int       `json:"riskScore"`
	RiskLevel       RiskLevel `json:"riskLevel"`
}

// Record is the catalog unit for an installed extension.
type Record struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	DisplayName   string            `json:"displayName,omitempty"`
	Version       string            `json:"version"`
	Description   string            `json:"description,omitempty"`
	Source        Source            `json:"source"`
	InstalledPath string            `json:"installedPath"`
	Enabled       bool              `json:"enabled"`
	Pinned        bool              `json:"pinned"`
	IsSystem      bool              `json:"isSystem,omitempty"`
	Manifest      *Manifest         `json:"manifest"`
	BrowserAction *BrowserAction    `json:"browserAction,omitempty"`
	Permissions   PermissionSummary `json:"permissions"`
	SourceURL     string            `json:"sourceUrl,omitempty"`
	InstalledAt   time.Time         `json:"installedAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// Valid reports whether a record carries the fields every catalog entry
// must have. Records failing this are dropped by registry cleanup.
func (r *Record) Valid() bool {
	return r != nil && ValidID(r.ID) && r.Name != "" && r.Version != "" &&
		r.InstalledPath != "" && r.Manifest != nil
}

// actionFromManifest projects the manifest's action block onto the record's
// BrowserAction, or nil when no action is declared.
func actionFromManifest(m *Manifest) *BrowserAction {
	if m == nil || m.Action == nil {
		return nil
	}
	title := m.Action.DefaultTitle
	if title == "" {
		title = m.Name
	}
	icon := m.Action.DefaultIcon.Best()
	if icon == "" {
		icon = m.Icons.Best()
	}
	return &BrowserAction{
		Title:     title,
		IconPath:  icon,
		PopupPath: m.Action.DefaultPopup,
	}
}

// sortRecords orders records the way the UI iterates them: pinned first by
// pin index, then unpinned by install time ascending.
func sortRecords(records []*Record, pinIndex map[string]int) {
	sort.SliceStable(records, func(i, j int) bool {
		pi, iPinned := pinIndex[records[i].ID]
		pj, jPinned := pinIndex[records[j].ID]
		switch {
		case iPinned && jPinned:
			return pi < pj
		case iPinned:
			return true
		case jPinned:
			return false
		default:
			return records[i].InstalledAt.Before(records[j].InstalledAt)
		}
	})
}
