// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// Outcome is the validator's decision for an extension.
type Outcome string

const (
	OutcomeAllow   Outcome = "allow"
	OutcomeConfirm Outcome = "confirm"
	OutcomeDeny    Outcome = "deny"
)

// ValidationResult is the full validator report.
type ValidationResult struct {
	IsValid   bool     `json:"isValid"`
	Outcome   Outcome  `json:"outcome"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	RiskScore int      `json:"riskScore"`
	RiskLevel RiskLevel `json:"riskLevel"`

	ManifestValidation SectionResult `json:"manifestValidation"`
	FileValidation     SectionResult `json:"fileValidation"`
	URLValidation      SectionResult `json:"urlValidation"`
}

// SectionResult reports one validation phase.
type SectionResult struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validator applies the extension validation policy. A zero Validator is
// not usable; construct with NewValidator.
type Validator struct {
	policy *Policy
}

// NewValidator creates a Validator. A nil policy selects DefaultPolicy.
func NewValidator(policy *Policy) *Validator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Validator{policy: policy}
}

// ValidateExtension validates a manifest, the unpacked directory tree at
// path, and an optional Web Store source URL. It never panics across this
// boundary: internal failures surface as an "Internal validation error"
// entry in Errors.
func (v *Validator) ValidateExtension(path string, manifest *Manifest, sourceURL string) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("validator panic", "path", path, "panic", r)
			result.Errors = append(result.Errors, "Internal validation error")
			result.IsValid = false
			result.Outcome = OutcomeDeny
		}
	}()

	result.ManifestValidation = v.validateManifest(manifest)
	dangerous := false
	if manifest != nil {
		var permScore int
		var permErrs, permWarnings []string
		permScore, dangerous, permErrs, permWarnings = v.scorePermissions(manifest.Permissions)
		hostScore, hostWarnings := v.scoreHostPermissions(manifest.HostPermissions)

		result.RiskScore = permScore + hostScore
		result.ManifestValidation.Errors = append(result.ManifestValidation.Errors, permErrs...)
		result.ManifestValidation.Warnings = append(result.ManifestValidation.Warnings, permWarnings...)
		result.ManifestValidation.Warnings = append(result.ManifestValidation.Warnings, hostWarnings...)
		result.ManifestValidation.Passed = result.ManifestValidation.Passed && len(permErrs) == 0
	}
	result.RiskLevel = LevelForScore(result.RiskScore)

	result.FileValidation = v.validateFiles(path)
	result.URLValidation = v.validateSourceURL(sourceURL)

	result.Errors = concat(result.ManifestValidation.Errors, result.FileValidation.Errors, result.URLValidation.Errors)
	result.Warnings = concat(result.ManifestValidation.Warnings, result.FileValidation.Warnings, result.URLValidation.Warnings)

	result.IsValid = len(result.Errors) == 0
	switch {
	case !result.IsValid:
		result.Outcome = OutcomeDeny
	case dangerous && v.policy.OnDangerousPermission == DangerousConfirm:
		result.Outcome = OutcomeConfirm
	default:
		result.Outcome = OutcomeAllow
	}
	return result
}

func (v *Validator) validateManifest(m *Manifest) SectionResult {
	var res SectionResult
	if m == nil {
		res.Errors = append(res.Errors, "manifest is missing")
		return res
	}

	errs, warnings := m.checkSchema(v.policy.RequiredManifestVersion)
	res.Errors = errs
	res.Warnings = warnings
	res.Passed = len(errs) == 0
	return res
}

// scorePermissions classifies each requested permission and accumulates the
// risk score. Blocked permissions are fatal.
func (v *Validator) scorePermissions(perms []string) (score int, dangerous bool, errs, warnings []string) {
	for _, p := range perms {
		switch {
		case blockedPermissions[p]:
			score += weightBlocked
			errs = append(errs, fmt.Sprintf("Blocked permission: %s", p))
		case dangerousPermissions[p]:
			score += weightDangerous
			dangerous = true
			warnings = append(warnings, fmt.Sprintf("Dangerous permission: %s", p))
		case mediumPermissions[p]:
			score += weightMedium
		case safePermissions[p]:
			score += weightSafe
		default:
			score += weightUnknown
			warnings = append(warnings, fmt.Sprintf("Unknown permission: %s", p))
		}
	}
	return score, dangerous, errs, warnings
}

func (v *Validator) scoreHostPermissions(patterns []string) (score int, warnings []string) {
	for _, pattern := range patterns {
		switch {
		case broadHostPatterns[pattern]:
			score += weightHostBroad
			warnings = append(warnings, fmt.Sprintf("Broad host permission: %s", pattern))
		case isLocalHostPattern(pattern):
			score += weightHostLocal
			warnings = append(warnings, fmt.Sprintf("Local host permission: %s", pattern))
		case strings.Count(pattern, "*") > 1:
			score += weightHostWildcard
			warnings = append(warnings, fmt.Sprintf("Overly broad wildcard: %s", pattern))
		default:
			score += weightHostSpecific
		}
	}
	return score, warnings
}

func isLocalHostPattern(pattern string) bool {
	lower := strings.ToLower(pattern)
	for _, marker := range localHostMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// validateFiles walks the unpacked extension tree enforcing the policy's
// count, size, and file-type limits. Dotfiles and node_modules are skipped.
func (v *Validator) validateFiles(root string) SectionResult {
	var res SectionResult
	if root == "" {
		res.Errors = append(res.Errors, "extension path is empty")
		return res
	}

	var fileCount int
	var totalSize int64

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		fileCount++
		if fileCount > v.policy.FileCountDeny {
			res.Errors = append(res.Errors,
				fmt.Sprintf("too many files: more than %d", v.policy.FileCountDeny))
			return filepath.SkipAll
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		size := info.Size()
		totalSize += size

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if size > v.policy.FileSizeDeny {
			res.Errors = append(res.Errors,
				fmt.Sprintf("file %s exceeds %d bytes", rel, v.policy.FileSizeDeny))
		} else if size > v.policy.FileSizeWarn {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("file %s is larger than %d bytes", rel, v.policy.FileSizeWarn))
		}

		if totalSize > v.policy.TotalSizeDeny {
			res.Errors = append(res.Errors,
				fmt.Sprintf("extension exceeds total size limit of %d bytes", v.policy.TotalSizeDeny))
			return filepath.SkipAll
		}

		v.checkFileType(rel, &res)
		return nil
	})
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("reading extension directory: %s", err))
	}

	if fileCount > v.policy.FileCountWarn && fileCount <= v.policy.FileCountDeny {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("extension contains %d files (more than %d)", fileCount, v.policy.FileCountWarn))
	}
	if totalSize > v.policy.TotalSizeWarn && totalSize <= v.policy.TotalSizeDeny {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("extension totals %d bytes (more than %d)", totalSize, v.policy.TotalSizeWarn))
	}

	res.Passed = len(res.Errors) == 0
	return res
}

func (v *Validator) checkFileType(rel string, res *SectionResult) {
	lower := strings.ToLower(rel)
	ext := strings.ToLower(filepath.Ext(rel))

	for _, blocked := range v.policy.BlockedFileExtensions {
		if ext == blocked {
			res.Errors = append(res.Errors, fmt.Sprintf("blocked file type: %s", rel))
			return
		}
	}
	for _, pattern := range v.policy.BlockedFilePatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			res.Errors = append(res.Errors, fmt.Sprintf("blocked file pattern %q: %s", pattern, rel))
			return
		}
	}
	if ext == "" {
		return
	}
	if v.policy.WarnUnknownExtensions {
		for _, allowed := range v.policy.AllowedFileExtensions {
			if ext == allowed {
				return
			}
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("unrecognized file type: %s", rel))
	}
}

// urlShortenerHosts are rejected as suspicious Web Store sources.
var urlShortenerHosts = map[string]bool{
	"bit.ly": true, "tinyurl.com": true, "goo.gl": true, "t.co": true,
	"is.gd": true, "ow.ly": true, "buff.ly": true, "rb.gy": true,
}

// suspiciousTLDs are low-reputation TLDs rejected as sources.
var suspiciousTLDs = []string{".tk", ".ml", ".ga", ".cf"}

// validateSourceURL checks an optional Web Store source URL. Empty source
// (sideload) passes trivially.
func (v *Validator) validateSourceURL(raw string) SectionResult {
	res := SectionResult{Passed: true}
	if raw == "" {
		return res
	}

	u, err := url.Parse(raw)
	if err != nil {
		res.Passed = false
		res.Errors = append(res.Errors, fmt.Sprintf("source URL does not parse: %s", err))
		return res
	}

	host := strings.ToLower(u.Hostname())

	if urlShortenerHosts[host] {
		res.Passed = false
		res.Errors = append(res.Errors, "source URL uses a URL shortener")
		return res
	}
	if net.ParseIP(host) != nil {
		res.Passed = false
		res.Errors = append(res.Errors, "source URL host is a bare IP address")
		return res
	}
	if isLocalHostPattern(host) {
		res.Passed = false
		res.Errors = append(res.Errors, "source URL host is local")
		return res
	}
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			res.Passed = false
			res.Errors = append(res.Errors, fmt.Sprintf("source URL TLD %s is not accepted", tld))
			return res
		}
	}
	for _, blocked := range v.policy.BlockedParentDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			res.Passed = false
			res.Errors = append(res.Errors, fmt.Sprintf("source URL domain %s is blocklisted", blocked))
			return res
		}
	}

	if _, err := ParseWebStoreURL(raw); err != nil {
		res.Passed = false
		res.Errors = append(res.Errors, "source URL is not a Chrome Web Store detail page")
	}
	return res
}

func concat(slices ...[]string) []string {
	var out []string
	for _, s := range slices {
		out = append(out, s...)
	}
	return out
}
