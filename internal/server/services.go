// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package server

import (
	"context"
	"encoding/json"

	"github.com/peersky-browser/peersky/internal/bridge"
	"github.com/peersky-browser/peersky/internal/extension"
	"github.com/peersky-browser/peersky/internal/permission"
	"github.com/peersky-browser/peersky/internal/protocol"
	"github.com/peersky-browser/peersky/internal/settings"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// DocumentBridge is the privilege bridge surface the server forwards to.
// Satisfied by *bridge.Bridge; an interface so handler tests can fake it.
type DocumentBridge interface {
	RegisterDocument(url string) *bridge.Document
	CloseDocument(id string)
	Invoke(ctx context.Context, docID, method string, args json.RawMessage) (any, error)
}

// Deps holds the subsystems the HTTP surface exposes.
type Deps struct {
	Bridge DocumentBridge
	Router *protocol.Router

	// Permissions backs /api/v1/permissions. Optional; when nil the
	// routes are not registered.
	Permissions *permission.Oracle

	// Event buses fanned out on /api/v1/events. A nil bus contributes no
	// events.
	ExtensionEvents *extension.Bus
	SettingsEvents  *settings.Bus
}

func (d Deps) validate() error {
	if d.Bridge == nil {
		return pskyerr.New(pskyerr.CodeServerConfigInvalid, "bridge is required")
	}
	if d.Router == nil {
		return pskyerr.New(pskyerr.CodeServerConfigInvalid, "protocol router is required")
	}
	return nil
}
