// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// ActionEntry is one toolbar button as presented to the shell.
type ActionEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Icon      string `json:"icon,omitempty"`
	Pinned    bool   `json:"pinned"`
	BadgeText string `json:"badgeText,omitempty"`
}

// Rect anchors a popup to UI coordinates supplied by the shell.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ClickDispatcher delivers action events into the rendering engine. The
// shell supplies the real implementation; tests substitute fakes.
type ClickDispatcher interface {
	// DispatchClick fires the action's click handler in the extension's
	// background context.
	DispatchClick(id string) error
	// ShowPopup renders the action's popup page anchored to rect.
	ShowPopup(id, popupPath string, anchor Rect) error
}

// ActionBroker enumerates enabled extensions' browser actions and routes
// clicks and popups. It reads the catalog but never mutates it; events
// carry ids so late subscribers re-query rather than holding stale state.
type ActionBroker struct {
	reg        *Registry
	dispatcher ClickDispatcher
}

func NewActionBroker(reg *Registry, d ClickDispatcher) *ActionBroker {
	return &ActionBroker{reg: reg, dispatcher: d}
}

// ListActions returns a toolbar entry for every enabled extension that
// declares a browser action, in catalog order.
func (b *ActionBroker) ListActions() []ActionEntry {
	var out []ActionEntry
	for _, rec := range b.reg.List() {
		if !rec.Enabled || rec.BrowserAction == nil {
			continue
		}
		out = append(out, ActionEntry{
			ID:        rec.ID,
			Name:      rec.Name,
			Title:     rec.BrowserAction.Title,
			Icon:      rec.BrowserAction.IconPath,
			Pinned:    rec.Pinned,
			BadgeText: rec.BrowserAction.BadgeText,
		})
	}
	return out
}

// actionable returns the record for id when it is enabled and declares an
// action.
func (b *ActionBroker) actionable(id string) (*Record, error) {
	rec, err := b.reg.Get(id)
	if err != nil {
		return nil, err
	}
	if !rec.Enabled {
		return nil, pskyerr.Errorf(pskyerr.CodeExtensionActionMissing,
			"extension %q is disabled", id)
	}
	if rec.BrowserAction == nil {
		return nil, pskyerr.Errorf(pskyerr.CodeExtensionActionMissing,
			"extension %q declares no browser action", id)
	}
	return rec, nil
}

// ClickAction dispatches an action click into the extension's background
// context.
func (b *ActionBroker) ClickAction(id string) error {
	rec, err := b.actionable(id)
	if err != nil {
		return err
	}
	if err := b.dispatcher.DispatchClick(rec.ID); err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeExtensionActionMissing, "dispatching action click",
			pskyerr.FieldExtension(id))
	}
	return nil
}

// OpenPopup shows the extension's popup anchored to the supplied rect.
// Extensions without a popup page fall back to a plain click.
func (b *ActionBroker) OpenPopup(id string, anchor Rect) error {
	rec, err := b.actionable(id)
	if err != nil {
		return err
	}
	if rec.BrowserAction.PopupPath == "" {
		return b.ClickAction(id)
	}
	if err := b.dispatcher.ShowPopup(rec.ID, rec.BrowserAction.PopupPath, anchor); err != nil {
		return pskyerr.Wrap(err, pskyerr.CodeExtensionActionMissing, "opening action popup",
			pskyerr.FieldExtension(id))
	}
	return nil
}
