// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// MaxPackageBytes bounds uploaded or sideloaded extension archives.
const MaxPackageBytes = 60 << 20

var packageExtensions = map[string]bool{
	".zip":  true,
	".crx":  true,
	".crx3": true,
}

// Result is the envelope every installer operation returns. Operational
// failures land in Err with a coded error; ErrorKind mirrors its taxonomy
// kind for the wire.
type Result struct {
	Success bool `json:"success"`

	// NeedsConfirmation is set when validation demands explicit user
	// consent for dangerous permissions and the caller did not grant it.
	NeedsConfirmation bool `json:"needsConfirmation,omitempty"`

	Extension  *Record           `json:"extension,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
	ErrorKind  string            `json:"errorKind,omitempty"`
	Error      string            `json:"error,omitempty"`

	Err error `json:"-"`
}

func failure(err error) *Result {
	return &Result{
		Err:       err,
		ErrorKind: string(pskyerr.KindOf(err)),
		Error:     err.Error(),
	}
}

// UpdateReport summarizes one UpdateAll pass.
type UpdateReport struct {
	Updated []string          `json:"updated"`
	Skipped []string          `json:"skipped"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Installer acquires extension payloads, validates them, lays them out on
// disk, and keeps the registry and event bus in sync.
type Installer struct {
	root      *Registry
	validator *Validator
	bus       *Bus
	store     Downloader
	dir       string // parent of per-extension directories
}

func NewInstaller(reg *Registry, v *Validator, bus *Bus, dl Downloader, dir string) *Installer {
	return &Installer{root: reg, validator: v, bus: bus, store: dl, dir: dir}
}

// InstallFromWebStore resolves a Web Store URL or bare id, downloads the
// CRX, and installs it. acceptDangerous confirms installation when the
// validator asks for consent.
func (in *Installer) InstallFromWebStore(ctx context.Context, urlOrID string, acceptDangerous bool) *Result {
	id, err := ParseWebStoreURL(urlOrID)
	if err != nil {
		return failure(err)
	}

	staging, err := os.MkdirTemp(in.dir, ".staging-"+id+"-*")
	if err != nil {
		return failure(pskyerr.Wrap(err, pskyerr.CodeExtensionInstallIO, "creating staging directory"))
	}
	defer os.RemoveAll(staging)

	crx, err := in.store.FetchCRX(ctx, id)
	if err != nil {
		return failure(err)
	}

	if err := unpackPackage(id+".crx", crx, staging); err != nil {
		return failure(err)
	}

	return in.finishInstall(installInput{
		id:        id,
		stagedAt:  staging,
		source:    SourceWebStore,
		sourceURL: BuildWebStoreURL(id),
	}, acceptDangerous)
}

// InstallFromFile installs a local .zip, .crx, or .crx3 archive.
func (in *Installer) InstallFromFile(ctx context.Context, path string, acceptDangerous bool) *Result {
	info, err := os.Stat(path)
	if err != nil {
		return failure(pskyerr.Wrap(err, pskyerr.CodeExtensionInstallIO, "reading extension archive"))
	}
	if info.Size() > MaxPackageBytes {
		return failure(pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid,
			"archive exceeds %d byte limit", MaxPackageBytes))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return failure(pskyerr.Wrap(err, pskyerr.CodeExtensionInstallIO, "reading extension archive"))
	}
	return in.InstallFromBlob(ctx, filepath.Base(path), data, acceptDangerous)
}

// InstallFromBlob installs an uploaded archive. The name's extension must
// be one of .zip, .crx, .crx3 and the payload must fit MaxPackageBytes.
func (in *Installer) InstallFromBlob(ctx context.Context, name string, data []byte, acceptDangerous bool) *Result {
	ext := strings.ToLower(filepath.Ext(name))
	if !packageExtensions[ext] {
		return failure(pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid,
			"unsupported archive type %q, expected .zip, .crx, or .crx3", ext))
	}
	if len(data) > MaxPackageBytes {
		return failure(pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid,
			"archive exceeds %d byte limit", MaxPackageBytes))
	}

	id := DeriveID(data)
	staging, err := os.MkdirTemp(in.dir, ".staging-"+id+"-*")
	if err != nil {
		return failure(pskyerr.Wrap(err, pskyerr.CodeExtensionInstallIO, "creating staging directory"))
	}
	defer os.RemoveAll(staging)

	if err := unpackPackage(name, data, staging); err != nil {
		return failure(err)
	}

	return in.finishInstall(installInput{
		id:       id,
		stagedAt: staging,
		source:   SourceLocal,
	}, acceptDangerous)
}

type installInput struct {
	id        string
	stagedAt  string
	source    Source
	sourceURL string
}

// finishInstall validates the staged tree, applies the duplicate-id rule,
// swaps the directory into place, and registers the record.
func (in *Installer) finishInstall(input installInput, acceptDangerous bool) *Result {
	manifest, err := readManifest(input.stagedAt)
	if err != nil {
		return failure(err)
	}

	vr := in.validator.ValidateExtension(input.stagedAt, manifest, input.sourceURL)
	switch vr.Outcome {
	case OutcomeDeny:
		return &Result{
			Validation: &vr,
			Warnings:   vr.Warnings,
			ErrorKind:  string(pskyerr.KindInvalid),
			Error:      strings.Join(vr.Errors, "; "),
			Err: pskyerr.New(pskyerr.CodeExtensionValidationDenied, "extension failed validation",
				pskyerr.FieldExtension(input.id)),
		}
	case OutcomeConfirm:
		if !acceptDangerous {
			return &Result{NeedsConfirmation: true, Validation: &vr, Warnings: vr.Warnings}
		}
	}

	// Duplicate install by id: only a version >= the installed one may
	// replace it.
	if existing, err := in.root.Get(input.id); err == nil {
		if CompareVersions(manifest.Version, existing.Version) < 0 {
			return failure(pskyerr.Errorf(pskyerr.CodeExtensionInstallInvalid,
				"version %s is older than installed %s", manifest.Version, existing.Version))
		}
	}

	final := filepath.Join(in.dir, input.id)
	if err := swapDir(input.stagedAt, final); err != nil {
		return failure(pskyerr.Wrap(err, pskyerr.CodeExtensionInstallIO, "placing extension directory",
			pskyerr.FieldExtension(input.id)))
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:            input.id,
		Name:          manifest.Name,
		DisplayName:   manifest.DisplayName(),
		Version:       manifest.Version,
		Description:   manifest.Description,
		Source:        input.source,
		InstalledPath: final,
		Enabled:       true,
		Manifest:      manifest,
		BrowserAction: actionFromManifest(manifest),
		Permissions: PermissionSummary{
			Requested:       manifest.Permissions,
			HostPermissions: manifest.HostPermissions,
			RiskScore:       vr.RiskScore,
			RiskLevel:       vr.RiskLevel,
		},
		SourceURL:   input.sourceURL,
		Warnings:    vr.Warnings,
		InstalledAt: now,
		UpdatedAt:   now,
	}
	if prior, err := in.root.Get(input.id); err == nil {
		rec.InstalledAt = prior.InstalledAt
		rec.Enabled = prior.Enabled
		rec.Pinned = prior.Pinned
		rec.IsSystem = prior.IsSystem
	}

	if err := in.root.Upsert(rec); err != nil {
		os.RemoveAll(final)
		return failure(err)
	}

	in.bus.Publish(Event{Type: EventInstalled, ID: rec.ID, Extension: rec})
	in.bus.Publish(Event{Type: EventActionChanged, ID: rec.ID})
	slog.Info("installed extension", "id", rec.ID, "name", rec.Name,
		"version", rec.Version, "risk", rec.Permissions.RiskLevel)
	return &Result{Success: true, Extension: rec, Warnings: vr.Warnings, Validation: &vr}
}

// Uninstall removes an extension's record and directory. Absent ids are a
// no-op; system extensions refuse removal. A directory that cannot be
// deleted downgrades to unregistration with a warning.
func (in *Installer) Uninstall(id string) *Result {
	rec, err := in.root.Get(id)
	if err != nil {
		if pskyerr.IsNotFound(err) {
			return &Result{Success: true}
		}
		return failure(err)
	}
	if rec.IsSystem {
		return failure(pskyerr.New(pskyerr.CodeExtensionSystemLocked,
			"system extensions cannot be uninstalled", pskyerr.FieldExtension(id)))
	}

	if err := in.root.Remove(id); err != nil {
		return failure(err)
	}

	var warnings []string
	if err := os.RemoveAll(rec.InstalledPath); err != nil {
		warnings = append(warnings,
			fmt.Sprintf("extension unregistered but directory could not be removed: %v", err))
		slog.Warn("uninstall left directory behind", "id", id, "path", rec.InstalledPath, "error", err)
	}

	in.bus.Publish(Event{Type: EventUninstalled, ID: id})
	in.bus.Publish(Event{Type: EventActionChanged, ID: id})
	return &Result{Success: true, Warnings: warnings}
}

// Toggle enables or disables an extension. The toggle event only fires on
// an actual change.
func (in *Installer) Toggle(id string, enabled bool) *Result {
	changed, err := in.root.SetEnabled(id, enabled)
	if err != nil {
		return failure(err)
	}
	rec, err := in.root.Get(id)
	if err != nil {
		return failure(err)
	}
	if changed {
		typ := EventDisabled
		if enabled {
			typ = EventEnabled
		}
		in.bus.Publish(Event{Type: typ, ID: id, Extension: rec})
		in.bus.Publish(Event{Type: EventActionChanged, ID: id})
	}
	return &Result{Success: true, Extension: rec}
}

// SetPinned updates toolbar pinning and notifies subscribers.
func (in *Installer) SetPinned(id string, pinned bool) *Result {
	if err := in.root.SetPinned(id, pinned); err != nil {
		return failure(err)
	}
	rec, err := in.root.Get(id)
	if err != nil {
		return failure(err)
	}
	typ := EventUnpinned
	if pinned {
		typ = EventPinned
	}
	in.bus.Publish(Event{Type: typ, ID: id, Extension: rec})
	in.bus.Publish(Event{Type: EventActionChanged, ID: id})
	return &Result{Success: true, Extension: rec}
}

// UpdateAll checks every Web Store extension for a newer version and
// reinstalls the ones that have one. Sideloaded extensions are skipped.
func (in *Installer) UpdateAll(ctx context.Context) *UpdateReport {
	report := &UpdateReport{Errors: make(map[string]string)}

	for _, rec := range in.root.List() {
		if rec.Source != SourceWebStore && rec.Source != SourceP2P {
			report.Skipped = append(report.Skipped, rec.ID)
			continue
		}
		latest, err := in.store.LatestVersion(ctx, rec.ID)
		if err != nil {
			report.Errors[rec.ID] = err.Error()
			continue
		}
		if latest == "" || CompareVersions(latest, rec.Version) <= 0 {
			report.Skipped = append(report.Skipped, rec.ID)
			continue
		}

		res := in.InstallFromWebStore(ctx, rec.ID, true)
		if res.Err != nil {
			report.Errors[rec.ID] = res.Err.Error()
			continue
		}
		report.Updated = append(report.Updated, rec.ID)
		in.bus.Publish(Event{Type: EventUpdated, ID: rec.ID, Extension: res.Extension})
	}

	if len(report.Errors) == 0 {
		report.Errors = nil
	}
	return report
}

// unpackPackage strips a CRX header when present and extracts the zip
// payload into dir.
func unpackPackage(name string, data []byte, dir string) error {
	payload, err := StripCRXHeader(data)
	if err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeExtensionInstallInvalid, "reading package header",
			pskyerr.Field("archive", name))
	}
	if err := Unzip(payload, dir, MaxPackageBytes*4); err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeExtensionInstallInvalid, "extracting package",
			pskyerr.Field("archive", name))
	}
	return nil
}

// readManifest loads manifest.json from an unpacked tree. Some packages
// nest everything under a single top-level directory; tolerate one level.
func readManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "manifest.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		entries, dirErr := os.ReadDir(dir)
		if dirErr == nil && len(entries) == 1 && entries[0].IsDir() {
			return readManifest(filepath.Join(dir, entries[0].Name()))
		}
	}
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeExtensionManifestInvalid, "reading manifest.json")
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// swapDir atomically replaces dst with src. A same-filesystem rename is
// attempted first; cross-device staging falls back to copy semantics via
// a sibling temp dir.
func swapDir(src, dst string) error {
	old := dst + ".old"
	os.RemoveAll(old)
	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, old); err != nil {
			return err
		}
	}
	if err := os.Rename(src, dst); err != nil {
		// Restore the previous tree if we displaced it.
		if _, statErr := os.Stat(old); statErr == nil {
			os.Rename(old, dst)
		}
		return err
	}
	os.RemoveAll(old)
	return nil
}
