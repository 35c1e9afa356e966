// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Peersky Browser Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	pskyerr "github.com/peersky-browser/peersky/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level Peersky daemon configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Networking NetworkingConfig `mapstructure:"networking"`
	Session    SessionConfig    `mapstructure:"session"`
	Protocol   ProtocolConfig   `mapstructure:"protocol"`
	Extensions ExtensionsConfig `mapstructure:"extensions"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Trusted    TrustedConfig    `mapstructure:"trusted"`
}

// NetworkingConfig controls how the daemon listens for shell connections.
type NetworkingConfig struct {
	Listen string `mapstructure:"listen"`
}

// SessionConfig selects the networking/cache partition browsing uses.
// Persist is sourced from the PEERSKY_SESSION_PERSIST environment toggle.
type SessionConfig struct {
	Persist bool `mapstructure:"persist"`
}

// ProtocolConfig points the router at its P2P backend gateways.
type ProtocolConfig struct {
	IPFSGateway  string        `mapstructure:"ipfs_gateway"`
	IPFSAPI      string        `mapstructure:"ipfs_api"`
	HyperGateway string        `mapstructure:"hyper_gateway"`
	EthRPC       string        `mapstructure:"eth_rpc"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	CacheEntries int           `mapstructure:"cache_entries"`
	IPNSCacheTTL time.Duration `mapstructure:"ipns_cache_ttl"`
	ENSCacheTTL  time.Duration `mapstructure:"ens_cache_ttl"`
}

// ExtensionsConfig controls the extension subsystem.
type ExtensionsConfig struct {
	// ChromeVersion is the version token sent to the Web Store CRX endpoint.
	ChromeVersion string `mapstructure:"chrome_version"`
	// UpdateSchedule is a cron spec for background update checks; empty disables.
	UpdateSchedule string `mapstructure:"update_schedule"`
	// PolicyFile optionally overrides the built-in validation policy (YAML).
	PolicyFile string `mapstructure:"policy_file"`
	// DownloadTimeout bounds Web Store fetches.
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// LLMConfig configures the model facade exposed to documents. API keys
// may be literal values or keyring:// URIs resolved at load time.
type LLMConfig struct {
	DefaultModel     string `mapstructure:"default_model"`
	MaxConcurrent    int    `mapstructure:"max_concurrent"`
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key"`
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key"`
}

// TrustedConfig lists external hosts granted the internal document class.
type TrustedConfig struct {
	Domains []string `mapstructure:"domains"`
}

// SetDefaults installs all configuration defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:9387")
	v.SetDefault("session.persist", false)
	v.SetDefault("protocol.ipfs_gateway", "http://127.0.0.1:8080")
	v.SetDefault("protocol.ipfs_api", "http://127.0.0.1:5001")
	v.SetDefault("protocol.hyper_gateway", "http://127.0.0.1:4977")
	v.SetDefault("protocol.eth_rpc", "https://cloudflare-eth.com")
	v.SetDefault("protocol.fetch_timeout", "60s")
	v.SetDefault("protocol.cache_entries", 1024)
	v.SetDefault("protocol.ipns_cache_ttl", "1m")
	v.SetDefault("protocol.ens_cache_ttl", "5m")
	v.SetDefault("extensions.chrome_version", "126.0.6478.127")
	v.SetDefault("extensions.update_schedule", "0 */6 * * *")
	v.SetDefault("extensions.download_timeout", "60s")
	v.SetDefault("llm.default_model", "anthropic/claude-sonnet-4-5")
	v.SetDefault("llm.max_concurrent", 4)
}

// SetupEnv binds PEERSKY_-prefixed environment variables on v, e.g.
// PEERSKY_SESSION_PERSIST=true.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("PEERSKY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix PEERSKY_).
func Load(path string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, pskyerr.Errorf(pskyerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pskyerr.Errorf(pskyerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It collects all
// issues rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateProtocol()...)
	errs = append(errs, c.validateExtensions()...)
	errs = append(errs, c.validateLLM()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
			"config: networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err,
		))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateProtocol() []error {
	var errs []error

	for _, ep := range []struct {
		key string
		val string
	}{
		{"protocol.ipfs_gateway", c.Protocol.IPFSGateway},
		{"protocol.ipfs_api", c.Protocol.IPFSAPI},
		{"protocol.hyper_gateway", c.Protocol.HyperGateway},
		{"protocol.eth_rpc", c.Protocol.EthRPC},
	} {
		if ep.val == "" {
			errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
				"config: %s must not be empty", ep.key))
			continue
		}
		if !strings.HasPrefix(ep.val, "http://") && !strings.HasPrefix(ep.val, "https://") {
			errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
				"config: %s must be an http(s) URL, got %q", ep.key, ep.val))
		}
	}

	if c.Protocol.FetchTimeout <= 0 {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
			"config: protocol.fetch_timeout must be positive, got %s", c.Protocol.FetchTimeout))
	}
	if c.Protocol.CacheEntries <= 0 {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
			"config: protocol.cache_entries must be positive, got %d", c.Protocol.CacheEntries))
	}

	return errs
}

func (c *Config) validateExtensions() []error {
	var errs []error

	if c.Extensions.ChromeVersion == "" {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
			"config: extensions.chrome_version must not be empty"))
	}
	if c.Extensions.DownloadTimeout <= 0 {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
			"config: extensions.download_timeout must be positive, got %s", c.Extensions.DownloadTimeout))
	}

	return errs
}

func (c *Config) validateLLM() []error {
	var errs []error

	if c.LLM.DefaultModel != "" && !strings.Contains(c.LLM.DefaultModel, "/") {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
			"config: llm.default_model must be in \"provider/model\" format, got %q", c.LLM.DefaultModel))
	}
	if c.LLM.MaxConcurrent <= 0 {
		errs = append(errs, pskyerr.Errorf(pskyerr.CodeConfigValidateInvalidValue,
			"config: llm.max_concurrent must be positive, got %d", c.LLM.MaxConcurrent))
	}

	return errs
}
