// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long:  "Check the running daemon's status endpoint and display status information.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:9387", "daemon address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	dc := newDaemonClient(addr)
	var body struct {
		Status string `json:"status"`
	}
	if err := dc.getJSON("/api/v1/status", &body); err != nil {
		if pskyerr.HasCode(err, pskyerr.CodeCLIDaemonNotRunning) {
			_, _ = fmt.Fprintf(out, "Daemon at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Daemon at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Daemon at %s: %s\n", addr, body.Status)
	return nil
}
