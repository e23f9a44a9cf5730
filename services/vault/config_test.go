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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearVaultEnv blanks every override so tests see only what they set.
func clearVaultEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"VAULT_CONFIG",
		"VAULT_LISTEN_ADDR",
		"VAULT_DATA_DIR",
		"VAULT_ASSET_DENOM",
		"VAULT_OPERATOR_TOKEN_FILE",
		"VAULT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":12310", cfg.ListenAddr)
	assert.Equal(t, "ualeut", cfg.AssetDenom)
	assert.Equal(t, "vault.pool", cfg.VaultAddress)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, float64(25), cfg.RateLimit.RPS)
	assert.Equal(t, 50, cfg.RateLimit.Burst)
	assert.False(t, cfg.Influx.Enabled)
	assert.Equal(t, "VAULT_INFLUX_TOKEN", cfg.Influx.TokenEnv)
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	clearVaultEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	clearVaultEnv(t)
	path := writeConfigFile(t, `
listen_addr: ":9999"
asset_denom: utest
vault_address: pool.main
operator_token_file: /run/secrets/operator
log:
  level: debug
  json: false
  dir: /var/log/vault
rate_limit:
  rps: 5
  burst: 10
genesis:
  balances:
    alice: "1000"
    bob: "250"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "utest", cfg.AssetDenom)
	assert.Equal(t, "pool.main", cfg.VaultAddress)
	assert.Equal(t, "/run/secrets/operator", cfg.OperatorTokenFile)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
	assert.Equal(t, "/var/log/vault", cfg.Log.Dir)
	assert.Equal(t, float64(5), cfg.RateLimit.RPS)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, "1000", cfg.Genesis.Balances["alice"])
	assert.Equal(t, "250", cfg.Genesis.Balances["bob"])

	// Sections the file omits keep their defaults.
	assert.Equal(t, "vault-data", cfg.DataDir)
	assert.Equal(t, "http://aleutian-influxdb:8086", cfg.Influx.URL)
}

func TestLoadConfig_PathFromEnv(t *testing.T) {
	clearVaultEnv(t)
	path := writeConfigFile(t, "listen_addr: \":8111\"\n")
	t.Setenv("VAULT_CONFIG", path)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8111", cfg.ListenAddr)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	clearVaultEnv(t)
	path := writeConfigFile(t, `
listen_addr: ":9999"
data_dir: /var/lib/vault
log:
  level: info
`)
	t.Setenv("VAULT_LISTEN_ADDR", ":7777")
	t.Setenv("VAULT_DATA_DIR", "")
	t.Setenv("VAULT_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, "warn", cfg.Log.Level)
	// Empty override strings are "not set", the file value stands.
	assert.Equal(t, "/var/lib/vault", cfg.DataDir)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearVaultEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	clearVaultEnv(t)
	path := writeConfigFile(t, "listen_addr: [:::\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoadConfig_RejectsInvalidFileValues(t *testing.T) {
	clearVaultEnv(t)
	path := writeConfigFile(t, "asset_denom: UALEUT\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestConfigValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"listen addr without port", func(c *Config) { c.ListenAddr = "localhost" }},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"empty denom", func(c *Config) { c.AssetDenom = "" }},
		{"uppercase denom", func(c *Config) { c.AssetDenom = "UALEUT" }},
		{"denom with punctuation", func(c *Config) { c.AssetDenom = "u-aleut" }},
		{"empty vault address", func(c *Config) { c.VaultAddress = "" }},
		{"vault address with spaces", func(c *Config) { c.VaultAddress = "vault pool" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"negative rate limit", func(c *Config) { c.RateLimit.RPS = -1 }},
		{"influx enabled without url", func(c *Config) {
			c.Influx.Enabled = true
			c.Influx.URL = ""
		}},
		{"influx enabled with junk url", func(c *Config) {
			c.Influx.Enabled = true
			c.Influx.URL = "not a url"
		}},
		{"genesis address malformed", func(c *Config) {
			c.Genesis.Balances = map[string]string{"BAD ADDR": "100"}
		}},
		{"genesis amount fractional", func(c *Config) {
			c.Genesis.Balances = map[string]string{"alice": "12.5"}
		}},
		{"genesis amount negative", func(c *Config) {
			c.Genesis.Balances = map[string]string{"alice": "-5"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigValidate_AcceptsGenesisBalances(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Genesis.Balances = map[string]string{
		"alice":         "1000000",
		"treasury.main": "500",
	}
	assert.NoError(t, cfg.Validate())
}
