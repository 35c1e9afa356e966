// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/peersky-browser/peersky/internal/config"
	"github.com/peersky-browser/peersky/internal/extension"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

func newExtensionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "extension",
		Aliases: []string{"ext"},
		Short:   "Manage installed extensions",
		Long:    "Inspect and modify the extension catalog in the data directory. Run these while the daemon is stopped; the daemon owns the catalog while it runs.",
	}

	cmd.AddCommand(
		newExtensionListCmd(),
		newExtensionInstallCmd(),
		newExtensionUninstallCmd(),
		newExtensionUpdateCmd(),
	)

	return cmd
}

func newExtensionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE:  runExtensionList,
	}
}

func newExtensionInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <web-store-url|id|archive-path>",
		Short: "Install an extension from the Chrome Web Store or a local archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtensionInstall,
	}
	cmd.Flags().Bool("accept-dangerous", false, "proceed past dangerous-permission confirmation")
	return cmd
}

func newExtensionUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <id>",
		Short: "Uninstall an extension",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtensionUninstall,
	}
}

func newExtensionUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Check every installed extension for updates",
		RunE:  runExtensionUpdate,
	}
}

// cliInstaller builds an installer stack rooted at the configured data
// directory, the same wiring the daemon uses.
func cliInstaller(cmd *cobra.Command) (*extension.Installer, *extension.Registry, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = viper.ConfigFileUsed()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	dataDir := viper.GetString("data_dir")
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return nil, nil, pskyerr.Errorf(pskyerr.CodeCLISetupFailure, "resolving data directory: %w", err)
		}
	}

	var policy *extension.Policy
	if cfg.Extensions.PolicyFile != "" {
		policy, err = extension.LoadPolicy(cfg.Extensions.PolicyFile)
		if err != nil {
			return nil, nil, pskyerr.Wrap(err, pskyerr.CodeCLISetupFailure, "loading extension policy")
		}
	}

	reg, err := extension.OpenRegistry(filepath.Join(dataDir, "extensions.json"))
	if err != nil {
		return nil, nil, pskyerr.Wrap(err, pskyerr.CodeCLISetupFailure, "opening extension registry")
	}

	downloader := extension.NewWebStoreClient(cfg.Extensions.ChromeVersion,
		extension.MaxPackageBytes, cfg.Extensions.DownloadTimeout)
	installer := extension.NewInstaller(reg, extension.NewValidator(policy),
		extension.NewBus(), downloader, filepath.Join(dataDir, "extensions"))
	return installer, reg, nil
}

func runExtensionList(cmd *cobra.Command, _ []string) error {
	_, reg, err := cliInstaller(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	records := reg.List()
	if len(records) == 0 {
		_, _ = fmt.Fprintln(out, "No extensions installed.")
		return nil
	}

	for _, rec := range records {
		state := "disabled"
		if rec.Enabled {
			state = "enabled"
		}
		flags := state
		if rec.Pinned {
			flags += ", pinned"
		}
		if rec.IsSystem {
			flags += ", system"
		}
		_, _ = fmt.Fprintf(out, "%s  %s %s (%s)\n", rec.ID, rec.Name, rec.Version, flags)
	}
	return nil
}

func runExtensionInstall(cmd *cobra.Command, args []string) error {
	installer, _, err := cliInstaller(cmd)
	if err != nil {
		return err
	}
	accept, _ := cmd.Flags().GetBool("accept-dangerous")

	target := args[0]
	var result *extension.Result
	if strings.HasSuffix(target, ".zip") || strings.HasSuffix(target, ".crx") || strings.HasSuffix(target, ".crx3") {
		result = installer.InstallFromFile(cmd.Context(), target, accept)
	} else {
		result = installer.InstallFromWebStore(cmd.Context(), target, accept)
	}

	out := cmd.OutOrStdout()
	if result.NeedsConfirmation {
		_, _ = fmt.Fprintln(out, "Installation requires confirmation of dangerous permissions:")
		for _, w := range result.Warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
		_, _ = fmt.Fprintln(out, "Re-run with --accept-dangerous to proceed.")
		return nil
	}
	if !result.Success {
		return pskyerr.Errorf(pskyerr.CodeCLIRequestFailure, "install failed (%s): %s", result.ErrorKind, result.Error)
	}

	_, _ = fmt.Fprintf(out, "Installed %s %s (%s)\n",
		result.Extension.Name, result.Extension.Version, result.Extension.ID)
	for _, w := range result.Warnings {
		_, _ = fmt.Fprintf(out, "  warning: %s\n", w)
	}
	return nil
}

func runExtensionUninstall(cmd *cobra.Command, args []string) error {
	installer, _, err := cliInstaller(cmd)
	if err != nil {
		return err
	}

	result := installer.Uninstall(args[0])
	if !result.Success {
		return pskyerr.Errorf(pskyerr.CodeCLIRequestFailure, "uninstall failed (%s): %s", result.ErrorKind, result.Error)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Uninstalled %s\n", args[0])
	for _, w := range result.Warnings {
		_, _ = fmt.Fprintf(out, "  warning: %s\n", w)
	}
	return nil
}

func runExtensionUpdate(cmd *cobra.Command, _ []string) error {
	installer, _, err := cliInstaller(cmd)
	if err != nil {
		return err
	}

	report := installer.UpdateAll(cmd.Context())
	out := cmd.OutOrStdout()
	for _, id := range report.Updated {
		_, _ = fmt.Fprintf(out, "updated %s\n", id)
	}
	for _, id := range report.Skipped {
		_, _ = fmt.Fprintf(out, "up to date %s\n", id)
	}
	for id, msg := range report.Errors {
		_, _ = fmt.Fprintf(out, "failed %s: %s\n", id, msg)
	}
	if len(report.Updated) == 0 && len(report.Errors) == 0 {
		_, _ = fmt.Fprintln(out, "All extensions up to date.")
	}
	return nil
}
