// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vault

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianVault/pkg/validation"
)

// Config is the vault service configuration. It is loaded from a YAML
// file, with environment variables taking precedence so containerized
// deployments can override single values without templating the file.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds. e.g. ":12310"
	ListenAddr string `yaml:"listen_addr" validate:"required,hostname_port"`

	// DataDir is the directory for the BadgerDB state and journal.
	// Empty runs in-memory: fine for demos, state dies with the process.
	DataDir string `yaml:"data_dir"`

	// AssetDenom names the pooled asset unit. e.g. "ualeut"
	AssetDenom string `yaml:"asset_denom" validate:"required,lowercase,alphanum"`

	// VaultAddress is the ledger account holding the pooled assets.
	VaultAddress string `yaml:"vault_address" validate:"required"`

	// OperatorTokenFile points at the shared-secret file gating yield
	// injection and minting. Empty disables operator endpoints (503).
	OperatorTokenFile string `yaml:"operator_token_file"`

	// Log controls the structured logger.
	Log LogConfig `yaml:"log"`

	// Otel controls OTLP trace export.
	Otel OtelConfig `yaml:"otel"`

	// Influx controls the exchange-rate time series.
	Influx InfluxConfig `yaml:"influx"`

	// RateLimit throttles mutating endpoints per client IP.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Genesis seeds asset balances on the first boot of an empty store.
	Genesis GenesisConfig `yaml:"genesis"`
}

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// JSON selects the JSON handler; false gets the text handler.
	JSON bool `yaml:"json"`
	// Dir enables a JSON file copy of the log, one file per day.
	// Empty keeps logging on stderr only.
	Dir string `yaml:"dir"`
}

// OtelConfig controls OTLP trace export over gRPC.
type OtelConfig struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is the collector address. Empty falls back to
	// OTEL_EXPORTER_OTLP_ENDPOINT, then the compose-network default.
	Endpoint string `yaml:"endpoint"`
}

// InfluxConfig controls the vault_rate series written after each
// transition. The token is never stored in the file; TokenEnv names the
// environment variable carrying it.
type InfluxConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url" validate:"required_if=Enabled true,omitempty,url"`
	Org      string `yaml:"org" validate:"required_if=Enabled true"`
	Bucket   string `yaml:"bucket" validate:"required_if=Enabled true"`
	TokenEnv string `yaml:"token_env"`
}

// RateLimitConfig throttles mutating endpoints per client IP.
// RPS zero disables limiting entirely.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" validate:"min=0"`
	Burst int     `yaml:"burst" validate:"min=0"`
}

// GenesisConfig seeds the asset ledger the first time the service boots
// on an empty store. Balances map addresses to decimal amount strings.
// Ignored once any state has been persisted.
type GenesisConfig struct {
	Balances map[string]string `yaml:"balances"`
}

// DefaultConfig returns the local single-node defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":12310",
		DataDir:      "vault-data",
		AssetDenom:   "ualeut",
		VaultAddress: "vault.pool",
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		Otel: OtelConfig{
			Enabled: false,
		},
		Influx: InfluxConfig{
			Enabled:  false,
			URL:      "http://aleutian-influxdb:8086",
			Org:      "aleutian",
			Bucket:   "vault",
			TokenEnv: "VAULT_INFLUX_TOKEN",
		},
		RateLimit: RateLimitConfig{
			RPS:   25,
			Burst: 50,
		},
	}
}

// LoadConfig reads the configuration file at path over the defaults and
// applies environment overrides. An empty path falls back to the
// VAULT_CONFIG variable, and to pure defaults when that is unset too.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("VAULT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override single values
// without touching the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VAULT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("VAULT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("VAULT_ASSET_DENOM"); v != "" {
		cfg.AssetDenom = v
	}
	if v := os.Getenv("VAULT_OPERATOR_TOKEN_FILE"); v != "" {
		cfg.OperatorTokenFile = v
	}
	if v := os.Getenv("VAULT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks structural constraints via the validator tags, then
// the ledger-domain fields the tags cannot express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := validation.SanitizeAddress(c.VaultAddress); err != nil {
		return fmt.Errorf("invalid vault_address: %w", err)
	}
	for addr, amount := range c.Genesis.Balances {
		if err := validation.ValidateAddress(addr); err != nil {
			return fmt.Errorf("invalid genesis address: %w", err)
		}
		if err := validation.ValidateAmountString(amount); err != nil {
			return fmt.Errorf("invalid genesis balance for %s: %w", addr, err)
		}
	}
	return nil
}
