// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

// Package extension implements the browser's extension subsystem: manifest
// validation, the durable catalog, installation from the Chrome Web Store
// and from local archives, and the browser-action broker feeding the
// toolbar UI.
package extension

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// versionRe matches Chrome-style dotted numeric versions: "1", "1.0",
// "1.0.0.0". Pre-release suffixes are not allowed.
var versionRe = regexp.MustCompile(`^\d+(\.\d+)*$`)

// maxNameLength bounds the manifest name field.
const maxNameLength = 50

// Manifest is the parsed representation of a Chrome-compatible extension
// manifest (Manifest V3).
type Manifest struct {
	ManifestVersion int      `json:"manifest_version"`
	Name            string   `json:"name"`
	ShortName       string   `json:"short_name,omitempty"`
	Version         string   `json:"version"`
	Description     string   `json:"description,omitempty"`
	Permissions     []string `json:"permissions,omitempty"`
	HostPermissions []string `json:"host_permissions,omitempty"`
	Background      *Background `json:"background,omitempty"`
	Action          *Action     `json:"action,omitempty"`
	Icons           IconSet     `json:"icons,omitempty"`
	UpdateURL       string      `json:"update_url,omitempty"`
}

// Background declares the extension's background context. MV3 requires a
// service worker.
type Background struct {
	ServiceWorker string `json:"service_worker,omitempty"`
	Scripts       []string `json:"scripts,omitempty"`
}

// Action declares the extension's toolbar browser action.
type Action struct {
	DefaultTitle string  `json:"default_title,omitempty"`
	DefaultPopup string  `json:"default_popup,omitempty"`
	DefaultIcon  IconSet `json:"default_icon,omitempty"`
}

// IconSet maps icon sizes to relative paths. Chrome manifests allow either
// a bare string or a size→path object; both decode into the same map.
type IconSet map[string]string

func (s *IconSet) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = IconSet{"default": single}
		return nil
	}

	var sized map[string]string
	if err := json.Unmarshal(data, &sized); err != nil {
		return fmt.Errorf("icon must be a path or a size map")
	}
	*s = IconSet(sized)
	return nil
}

// Best returns the largest declared icon path, or empty when none.
func (s IconSet) Best() string {
	if len(s) == 0 {
		return ""
	}
	order := []string{"128", "64", "48", "32", "19", "16", "default"}
	for _, size := range order {
		if p, ok := s[size]; ok && p != "" {
			return p
		}
	}
	for _, p := range s {
		if p != "" {
			return p
		}
	}
	return ""
}

// ParseManifest parses manifest.json bytes. Schema validation is a separate
// step (Validator.validateManifest) so callers can collect warnings instead
// of failing on the first problem.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, pskyerr.Errorf(pskyerr.CodeExtensionManifestInvalid, "manifest parse: %s", err)
	}
	return &m, nil
}

// checkSchema applies the structural manifest rules. It returns fatal errors
// and non-fatal warnings separately.
func (m *Manifest) checkSchema(requiredVersion int) (errs, warnings []string) {
	if m.ManifestVersion != requiredVersion {
		errs = append(errs, fmt.Sprintf("manifest_version must be %d, got %d", requiredVersion, m.ManifestVersion))
	}

	name := strings.TrimSpace(m.Name)
	if name == "" {
		errs = append(errs, "name must not be empty")
	} else if len(m.Name) > maxNameLength {
		errs = append(errs, fmt.Sprintf("name must be at most %d characters, got %d", maxNameLength, len(m.Name)))
	}

	if m.Version == "" {
		errs = append(errs, "version must not be empty")
	} else if !versionRe.MatchString(m.Version) {
		errs = append(errs, fmt.Sprintf("version must be a dotted numeric string, got %q", m.Version))
	}

	if m.Background != nil && m.Background.ServiceWorker == "" {
		warnings = append(warnings, "background is declared without a service_worker (MV3 extensions should use one)")
	}

	return errs, warnings
}

// DisplayName prefers short_name when present.
func (m *Manifest) DisplayName() string {
	if m.ShortName != "" {
		return m.ShortName
	}
	return m.Name
}
