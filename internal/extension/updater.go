// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package extension

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Updater runs UpdateAll on a cron schedule in the background.
type Updater struct {
	installer *Installer
	cron      *cron.Cron
}

// NewUpdater schedules periodic update checks. spec is a standard five
// field cron expression.
func NewUpdater(in *Installer, spec string) (*Updater, error) {
	u := &Updater{installer: in, cron: cron.New()}
	_, err := u.cron.AddFunc(spec, u.run)
	if err != nil {
		return nil, pskyerr.Wrapf(err, pskyerr.CodeConfigLoadReadFailure,
			"invalid update schedule %q", spec)
	}
	return u, nil
}

func (u *Updater) run() {
	report := u.installer.UpdateAll(context.Background())
	slog.Info("extension update pass finished",
		"updated", len(report.Updated),
		"skipped", len(report.Skipped),
		"errors", len(report.Errors))
}

func (u *Updater) Start() { u.cron.Start() }

// Stop halts scheduling and waits for a running pass to finish.
func (u *Updater) Stop() {
	ctx := u.cron.Stop()
	<-ctx.Done()
}
