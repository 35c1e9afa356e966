// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/peersky-browser/peersky/internal/config"
	"github.com/peersky-browser/peersky/internal/secrets"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the peersky daemon",
		Long:  "Load configuration, initialize all subsystems, and serve the shell API until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()

	if v.GetBool("verbose") {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// Replace keyring:// references (LLM API keys) before unmarshalling.
	secrets.ResolveViperSecrets(v, secretStoreFactory())

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return pskyerr.Errorf(pskyerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	config.WarnInsecurePermissions(v.ConfigFileUsed())

	dataDir := cfg.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return pskyerr.Errorf(pskyerr.CodeCLISetupFailure, "resolving data directory: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := WireDaemon(&cfg, dataDir)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting peersky on %s (session persist=%t)\n",
		cfg.Networking.Listen, cfg.Session.Persist)

	runErr := daemon.Start(ctx)
	if closeErr := daemon.Close(); closeErr != nil {
		slog.Warn("daemon shutdown left errors", "error", closeErr)
	}
	return runErr
}
