// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	"os"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DangerousPermissionMode selects how the validator treats dangerous (but
// not blocked) permissions.
type DangerousPermissionMode string

const (
	// DangerousConfirm surfaces a confirm outcome so the UI can ask the user.
	DangerousConfirm DangerousPermissionMode = "confirm"
	// DangerousAllow accepts dangerous permissions with a warning only.
	DangerousAllow DangerousPermissionMode = "allow"
)

// Policy tunes the manifest validator. The zero value is unusable; start
// from DefaultPolicy and override via LoadPolicy.
type Policy struct {
	RequiredManifestVersion int `yaml:"required_manifest_version"`

	OnDangerousPermission DangerousPermissionMode `yaml:"on_dangerous_permission"`

	// File validation limits.
	FileCountWarn  int   `yaml:"file_count_warn"`
	FileCountDeny  int   `yaml:"file_count_deny"`
	FileSizeWarn   int64 `yaml:"file_size_warn"`
	FileSizeDeny   int64 `yaml:"file_size_deny"`
	TotalSizeWarn  int64 `yaml:"total_size_warn"`
	TotalSizeDeny  int64 `yaml:"total_size_deny"`

	// Extension allow/block lists, lowercase with leading dot (".js").
	AllowedFileExtensions []string `yaml:"allowed_file_extensions"`
	BlockedFileExtensions []string `yaml:"blocked_file_extensions"`
	// BlockedFilePatterns are substrings matched against POSIX-style
	// relative paths.
	BlockedFilePatterns []string `yaml:"blocked_file_patterns"`
	// WarnUnknownExtensions emits a warning for files outside the allowlist.
	WarnUnknownExtensions bool `yaml:"warn_unknown_extensions"`

	// BlockedParentDomains rejects Web Store source URLs whose host falls
	// under any of these domains.
	BlockedParentDomains []string `yaml:"blocked_parent_domains"`
}

// DefaultPolicy returns the validator defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		RequiredManifestVersion: 3,
		OnDangerousPermission:   DangerousConfirm,
		FileCountWarn:           10_000,
		FileCountDeny:           50_000,
		FileSizeWarn:            20 << 20,
		FileSizeDeny:            60 << 20,
		TotalSizeWarn:           200 << 20,
		TotalSizeDeny:           750 << 20,
		AllowedFileExtensions: []string{
			".js", ".mjs", ".json", ".html", ".htm", ".css",
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
			".woff", ".woff2", ".ttf", ".otf", ".eot",
			".txt", ".md", ".map", ".wasm", ".xml", ".csv",
			".mp3", ".wav", ".ogg", ".mp4", ".webm",
		},
		BlockedFileExtensions: []string{
			".exe", ".dll", ".so", ".dylib", ".bat", ".cmd", ".sh",
			".com", ".scr", ".msi", ".app", ".deb", ".rpm",
		},
		BlockedFilePatterns: []string{
			"../",
		},
		WarnUnknownExtensions: true,
		BlockedParentDomains:  nil,
	}
}

// LoadPolicy reads a YAML policy file layered over the defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeConfigLoadReadFailure, "reading validation policy",
			pskyerr.Field("path", path))
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, pskyerr.Errorf(pskyerr.CodeConfigParseInvalidFormat, "parsing validation policy %s: %w", path, err)
	}
	return p, nil
}

// Permission weight classification. The four buckets and their weights are
// fixed; unknown permissions fall through to a warning weight.
const (
	weightSafe      = 2
	weightMedium    = 10
	weightDangerous = 25
	weightBlocked   = 60
	weightUnknown   = 10
)

var safePermissions = map[string]bool{
	"storage": true, "alarms": true, "notifications": true,
	"idle": true, "power": true,
	"system.cpu": true, "system.memory": true, "system.storage": true,
}

var mediumPermissions = map[string]bool{
	"activeTab": true, "tabs": true, "bookmarks": true, "history": true,
	"contextMenus": true, "cookies": true, "downloads": true,
	"webNavigation": true,
}

var dangerousPermissions = map[string]bool{
	"<all_urls>": true, "webRequest": true, "webRequestBlocking": true,
	"proxy": true, "privacy": true, "management": true,
	"system.display": true, "enterprise.platformKeys": true,
}

var blockedPermissions = map[string]bool{
	"nativeMessaging": true, "debugger": true, "desktopCapture": true,
	"experimental": true, "mdns": true, "serial": true, "usb": true,
	"fileSystem": true, "fileSystemProvider": true,
}

// Host pattern weight classification.
const (
	weightHostBroad    = 25
	weightHostLocal    = 10
	weightHostWildcard = 8
	weightHostSpecific = 2
)

var broadHostPatterns = map[string]bool{
	"<all_urls>": true, "*://*/*": true,
	"http://*/*": true, "https://*/*": true, "file:///*": true,
}

var localHostMarkers = []string{"localhost", "127.0.0.1", "0.0.0.0", ".local"}
