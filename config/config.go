// Copyright (C) 2025 koi-net
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure.
type Config struct {
	Environment  string          `yaml:"environment" json:"environment"`
	Node         *NodeConfig     `yaml:"node" json:"node"`
	Cache        *CacheConfig    `yaml:"cache" json:"cache"`
	FirstContact *FirstContact   `yaml:"first_contact" json:"first_contact"`
	KeyStore     *KeyStoreConfig `yaml:"keystore" json:"keystore"`
	Secure       *SecureConfig   `yaml:"secure" json:"secure"`
	Server       *ServerConfig   `yaml:"server" json:"server"`
	Logging      *LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics      *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health       *HealthConfig   `yaml:"health" json:"health"`
}

// NodeConfig names and types this node.
type NodeConfig struct {
	Name string `yaml:"name" json:"name"`
	// Type is "FULL" or "PARTIAL". FULL nodes run an HTTP server and
	// serve all five RPC endpoints; PARTIAL nodes run a poller instead.
	Type string `yaml:"type" json:"type"`
	// BaseURL is this node's own advertised base_url (FULL only).
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Provides declares the RID types this node serves as events and
	// as queryable state, published in its own NodeProfile.
	Provides ProvidesConfig `yaml:"provides" json:"provides"`
}

// ProvidesConfig mirrors koi.Provides as plain strings for config files.
type ProvidesConfig struct {
	Event []string `yaml:"event" json:"event"`
	State []string `yaml:"state" json:"state"`
}

// CacheConfig selects and configures the persistent RID->Bundle store.
type CacheConfig struct {
	// Type is "memory" or "file".
	Type string `yaml:"type" json:"type"`
	Path string `yaml:"path" json:"path"`
}

// FirstContact names the bootstrap peer a fresh node handshakes with.
type FirstContact struct {
	RID string `yaml:"rid" json:"rid"`
	URL string `yaml:"url" json:"url"`
}

// KeyStoreConfig locates and, optionally, passphrase-protects the
// node's private key.
type KeyStoreConfig struct {
	PrivateKeyFile string `yaml:"private_key_file" json:"private_key_file"`
	PassphraseEnv  string `yaml:"passphrase_env" json:"passphrase_env"`
}

// SecureConfig tunes the secure-envelope verifier.
type SecureConfig struct {
	// ClockSkew bounds how far an envelope's timestamp header may drift
	// from now before it is rejected.
	ClockSkew time.Duration `yaml:"clock_skew" json:"clock_skew"`
}

// ServerConfig configures the FULL-node HTTP listener and RPC timeouts.
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr" json:"listen_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration.
type HealthConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Addr    string   `yaml:"addr" json:"addr"`
	Path    string   `yaml:"path" json:"path"`
	Checks  []string `yaml:"checks" json:"checks"`
}

// LoadFromFile loads configuration from a file, trying YAML then JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file, picking the format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults sets default values for configuration.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Node == nil {
		cfg.Node = &NodeConfig{}
	}
	if cfg.Node.Type == "" {
		cfg.Node.Type = "FULL"
	}

	if cfg.Cache == nil {
		cfg.Cache = &CacheConfig{}
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "file"
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = ".koi/cache"
	}

	if cfg.KeyStore == nil {
		cfg.KeyStore = &KeyStoreConfig{}
	}
	if cfg.KeyStore.PrivateKeyFile == "" {
		cfg.KeyStore.PrivateKeyFile = ".koi/identity.pem"
	}

	if cfg.Secure == nil {
		cfg.Secure = &SecureConfig{}
	}
	if cfg.Secure.ClockSkew == 0 {
		cfg.Secure.ClockSkew = 5 * time.Minute
	}

	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8000"
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health == nil {
		cfg.Health = &HealthConfig{}
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":9091"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
}

// Validate checks required fields and returns a descriptive error for
// the first problem found.
func (c *Config) Validate() error {
	if c.Node == nil || c.Node.Name == "" {
		return fmt.Errorf("node.name is required")
	}
	if c.Node.Type != "FULL" && c.Node.Type != "PARTIAL" {
		return fmt.Errorf("node.type must be FULL or PARTIAL, got %q", c.Node.Type)
	}
	if c.Node.Type == "FULL" && c.Node.BaseURL == "" {
		return fmt.Errorf("node.base_url is required for FULL nodes")
	}
	return nil
}
