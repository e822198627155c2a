// Package config provides configuration management for the gateway. It
// handles loading and parsing a YAML configuration file, and provides
// structured access to listen address, identity-store/usage-sink backend
// selection, API keys, and model aliases. Grounded on the teacher's
// internal/config.SDKConfig shape, adapted to this gateway's backend
// choices (identity store / usage sink drivers instead of proxy-url /
// force-model-prefix).
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration, loaded once at bootstrap from a YAML
// file and updated in place for api-keys/model-aliases by the watcher. mu
// guards only the hot-reloadable fields (APIKeys, ModelAliases); the rest
// are set once at Load and never mutated afterward.
type Config struct {
	mu sync.RWMutex

	Listen string `yaml:"listen" json:"listen"`

	APIKeys []string `yaml:"api-keys" json:"api-keys"`

	IdentityStore IdentityStoreConfig `yaml:"identity-store" json:"identity-store"`
	UsageSink     UsageSinkConfig     `yaml:"usage-sink" json:"usage-sink"`

	ModelAliases map[string]string `yaml:"model-aliases" json:"model-aliases"`

	Log LogConfig `yaml:"log" json:"log"`
}

// IdentityStoreConfig selects and configures the Identity/Credential
// backend (file or postgres).
type IdentityStoreConfig struct {
	Driver  string `yaml:"driver" json:"driver"` // "file" or "postgres"
	BaseDir string `yaml:"base-dir" json:"base-dir"`
	DSN     string `yaml:"dsn" json:"dsn"`
}

// UsageSinkConfig selects and configures the UsageRecord sink (file or
// object storage).
type UsageSinkConfig struct {
	Driver    string `yaml:"driver" json:"driver"` // "file" or "object"
	Path      string `yaml:"path" json:"path"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	AccessKey string `yaml:"access-key" json:"access-key"`
	SecretKey string `yaml:"secret-key" json:"secret-key"`
	UseSSL    bool   `yaml:"use-ssl" json:"use-ssl"`
}

// LogConfig controls logrus + lumberjack output.
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	Dir        string `yaml:"dir" json:"dir"`
	MaxSizeMB  int    `yaml:"max-size-mb" json:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups" json:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days" json:"max-age-days"`
}

// defaultModelAliases is the hard-coded fallback table consulted when a
// requested model has no entry in the configured ModelAliases map.
var defaultModelAliases = map[string]string{
	"gpt-4":                      "gemini-3-pro-preview",
	"gpt-4o":                     "gemini-3-pro-preview",
	"gpt-3.5-turbo":              "gemini-3-flash",
	"claude-3-5-sonnet-20241022": "claude-sonnet-4-5-thinking",
}

// Load reads an optional .env file (ignored if absent) followed by the
// YAML config at path.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.IdentityStore.Driver == "" {
		c.IdentityStore.Driver = "file"
	}
	if c.IdentityStore.BaseDir == "" {
		c.IdentityStore.BaseDir = "./identities"
	}
	if c.UsageSink.Driver == "" {
		c.UsageSink.Driver = "file"
	}
	if c.UsageSink.Path == "" {
		c.UsageSink.Path = "./usage/usage.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.ModelAliases == nil {
		c.ModelAliases = map[string]string{}
	}
}

// ResolveModel maps a client-requested model name to its upstream target.
// The configured table is consulted first, then the hard-coded default
// table; absence of both yields the requested name unchanged (pass
// through).
func (c *Config) ResolveModel(requested string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if target, ok := c.ModelAliases[requested]; ok {
		return target
	}
	if target, ok := defaultModelAliases[requested]; ok {
		return target
	}
	return requested
}

// IsValidAPIKey reports whether key is one of the configured API keys.
func (c *Config) IsValidAPIKey(key string) bool {
	if key == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range c.APIKeys {
		if k == key {
			return true
		}
	}
	return false
}
