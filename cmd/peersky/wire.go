// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/peersky-browser/peersky/internal/bridge"
	"github.com/peersky-browser/peersky/internal/config"
	"github.com/peersky-browser/peersky/internal/extension"
	"github.com/peersky-browser/peersky/internal/permission"
	"github.com/peersky-browser/peersky/internal/protocol"
	"github.com/peersky-browser/peersky/internal/provider"
	anthropicprov "github.com/peersky-browser/peersky/internal/provider/anthropic"
	openaiprov "github.com/peersky-browser/peersky/internal/provider/openai"
	openrouterprov "github.com/peersky-browser/peersky/internal/provider/openrouter"
	"github.com/peersky-browser/peersky/internal/server"
	"github.com/peersky-browser/peersky/internal/settings"
	"github.com/peersky-browser/peersky/internal/store/sqlite"
	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
)

// Daemon holds all wired subsystems and manages their lifecycle.
type Daemon struct {
	Server    *server.Server
	Bridge    *bridge.Bridge
	Router    *protocol.Router
	Registry  *extension.Registry
	Installer *extension.Installer
	Updater   *extension.Updater
	Oracle    *permission.Oracle
	Settings  *settings.Store
	Bookmarks *sqlite.BookmarkStore
	Providers *provider.Registry
}

// WireDaemon creates all subsystems and wires them together.
// The dataDir is the root directory for all persistent state.
func WireDaemon(cfg *config.Config, dataDir string) (*Daemon, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, pskyerr.Errorf(pskyerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	// 1. Session policy — fixed for the process lifetime; the bridge
	// re-asserts it on every privileged call.
	if _, err := config.InitSession(cfg.Session.Persist); err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeCLISetupFailure, "initializing session policy")
	}

	// 2. Extension subsystem: catalog, validator, installer, updater,
	// toolbar action broker.
	var policy *extension.Policy
	if cfg.Extensions.PolicyFile != "" {
		var err error
		policy, err = extension.LoadPolicy(cfg.Extensions.PolicyFile)
		if err != nil {
			return nil, pskyerr.Wrap(err, pskyerr.CodeCLISetupFailure, "loading extension policy")
		}
	}
	validator := extension.NewValidator(policy)

	extReg, err := extension.OpenRegistry(filepath.Join(dataDir, "extensions.json"))
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeCLISetupFailure, "opening extension registry")
	}
	if removed, err := extReg.Cleanup(); err != nil {
		slog.Warn("extension catalog cleanup failed", "error", err)
	} else if len(removed) > 0 {
		slog.Info("removed dangling extension records", "count", len(removed))
	}

	extBus := extension.NewBus()
	downloader := extension.NewWebStoreClient(cfg.Extensions.ChromeVersion,
		extension.MaxPackageBytes, cfg.Extensions.DownloadTimeout)
	installer := extension.NewInstaller(extReg, validator, extBus, downloader,
		filepath.Join(dataDir, "extensions"))

	var updater *extension.Updater
	if cfg.Extensions.UpdateSchedule != "" {
		updater, err = extension.NewUpdater(installer, cfg.Extensions.UpdateSchedule)
		if err != nil {
			return nil, pskyerr.Wrap(err, pskyerr.CodeCLISetupFailure, "scheduling extension updates")
		}
	}
	actions := extension.NewActionBroker(extReg, &busClickDispatcher{bus: extBus})

	// 3. Protocol router and scheme handlers. The archive records
	// successful hyper/ipfs/ens resolutions.
	archive := protocol.OpenArchive(filepath.Join(dataDir, "archive.json"))
	ipfs := protocol.NewIPFSHandler(cfg.Protocol.IPFSGateway, cfg.Protocol.FetchTimeout, archive)
	ipns := protocol.NewIPNSHandler(cfg.Protocol.IPFSAPI, cfg.Protocol.FetchTimeout,
		cfg.Protocol.IPNSCacheTTL, cfg.Protocol.CacheEntries, ipfs)
	hyper := protocol.NewHyperHandler(cfg.Protocol.HyperGateway, cfg.Protocol.FetchTimeout, archive)
	web3 := protocol.NewWeb3Handler(cfg.Protocol.EthRPC, cfg.Protocol.FetchTimeout,
		cfg.Protocol.ENSCacheTTL, cfg.Protocol.CacheEntries, ipfs, ipns)
	pages := protocol.NewPeerskyHandler()

	router := protocol.NewRouter()
	router.Register("ipfs", ipfs)
	router.Register("ipns", ipns)
	router.Register("hyper", hyper)
	router.Register("web3", web3)
	router.Register("peersky", pages)

	// 4. Permission oracle. Prompts are shell-mediated over the HTTP
	// check/decide routes; an in-process request without a cached
	// decision denies without recording.
	oracle := permission.NewOracle(filepath.Join(dataDir, "permissions.json"),
		permission.PrompterFunc(func(context.Context, string, string) (permission.PromptResult, error) {
			return permission.ResultBlock, errors.New("no in-process prompter")
		}))

	// 5. Settings store. The P2P reset hook drops the router's name
	// resolution caches.
	settingsStore := settings.Open(filepath.Join(dataDir, "settings.json"), settings.Hooks{
		ResetP2P: func() {
			ipns.ResetCache()
			web3.ResetCache()
		},
	})

	// 6. Bookmarks.
	bookmarks, err := sqlite.NewBookmarkStore(filepath.Join(dataDir, "bookmarks.db"))
	if err != nil {
		return nil, pskyerr.Wrap(err, pskyerr.CodeCLISetupFailure, "opening bookmark store")
	}

	// 7. LLM providers and the document-facing facade.
	provReg := provider.NewRegistry()
	registerBuiltinProviders(cfg.LLM, provReg)
	facade := provider.NewFacade(provReg, cfg.LLM)

	// 8. Privilege bridge.
	br := bridge.New(bridge.Deps{
		Classifier: bridge.NewClassifier(cfg.Trusted.Domains),
		Settings:   settingsStore,
		Registry:   extReg,
		Installer:  installer,
		Actions:    actions,
		Bookmarks:  bookmarks,
		Archive:    archive,
		Pages:      pages,
		LLM:        facade,
	})

	// 9. HTTP surface.
	srv, err := server.New(server.Config{
		ListenAddr: cfg.Networking.Listen,
	}, server.Deps{
		Bridge:          br,
		Router:          router,
		Permissions:     oracle,
		ExtensionEvents: extBus,
		SettingsEvents:  settingsStore.Bus(),
	})
	if err != nil {
		_ = bookmarks.Close()
		return nil, pskyerr.Wrap(err, pskyerr.CodeCLISetupFailure, "creating server")
	}

	return &Daemon{
		Server:    srv,
		Bridge:    br,
		Router:    router,
		Registry:  extReg,
		Installer: installer,
		Updater:   updater,
		Oracle:    oracle,
		Settings:  settingsStore,
		Bookmarks: bookmarks,
		Providers: provReg,
	}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
// The background update schedule runs for the same window.
func (d *Daemon) Start(ctx context.Context) error {
	if d.Updater != nil {
		d.Updater.Start()
		defer d.Updater.Stop()
	}
	return d.Server.Start(ctx)
}

// Close releases all resources held by the daemon.
func (d *Daemon) Close() error {
	var errs []error
	if err := d.Oracle.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := d.Providers.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.Bookmarks.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// busClickDispatcher forwards action clicks and popup requests to the
// shell over the extension event bus; the shell hosts the extension
// background contexts.
type busClickDispatcher struct {
	bus *extension.Bus
}

func (d *busClickDispatcher) DispatchClick(id string) error {
	d.bus.Publish(extension.Event{Type: extension.EventActionClicked, ID: id})
	return nil
}

func (d *busClickDispatcher) ShowPopup(id, popupPath string, anchor extension.Rect) error {
	d.bus.Publish(extension.Event{
		Type:      extension.EventActionPopup,
		ID:        id,
		PopupPath: popupPath,
		Anchor:    &anchor,
	})
	return nil
}

// providerFactory builds a provider.Provider from an API key.
type providerFactory func(apiKey string) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(key string) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: key})
	},
	"openai": func(key string) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: key})
	},
	"openrouter": func(key string) (provider.Provider, error) {
		return openrouterprov.New(openrouterprov.Config{APIKey: key})
	},
}

// registerBuiltinProviders registers every backend with a configured API
// key. A missing key skips the backend; a constructor failure is logged
// and skipped — neither is fatal at startup.
func registerBuiltinProviders(cfg config.LLMConfig, reg *provider.Registry) {
	keys := map[string]string{
		"anthropic":  cfg.AnthropicAPIKey,
		"openai":     cfg.OpenAIAPIKey,
		"openrouter": cfg.OpenRouterAPIKey,
	}
	for name, factory := range builtinProviderFactories {
		key := keys[name]
		if key == "" {
			slog.Debug("model provider has no API key, skipping", "provider", name)
			continue
		}
		p, err := factory(key)
		if err != nil {
			slog.Warn("failed to create model provider", "provider", name, "error", err)
			continue
		}
		if err := reg.Register(name, p); err != nil {
			slog.Warn("failed to register model provider", "provider", name, "error", err)
			continue
		}
		slog.Info("registered model provider", "provider", name)
	}
}
