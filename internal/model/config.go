package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AccountConfig holds the configuration for a single linked provider
// account. Credentials are not part of the config file; they live in
// the system keyring keyed by the account id.
type AccountConfig struct {
	// ID is the unique identifier for this account.
	ID string `mapstructure:"id" yaml:"id"`

	// UserID identifies the owning user.
	UserID string `mapstructure:"user_id" yaml:"user_id"`

	// Type identifies the provider family
	// ("imap", "gmail", "discord", "whatsapp", "sms-a", "sms-b").
	Type string `mapstructure:"type" yaml:"type"`

	// Label is the user-defined name for this account.
	Label string `mapstructure:"label" yaml:"label"`

	// BaseURL is the provider endpoint where applicable.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Enabled controls whether this account is actively synced.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// PollIntervalSec is how often (in seconds) to sync this account.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// SyncConfig holds orchestrator tunables.
type SyncConfig struct {
	// PollIntervalSec is the default background sync interval.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// PageSize is the steady-state fetch window.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// BulkPageSize is the fetch window for the initial link-time sync.
	BulkPageSize int `mapstructure:"bulk_page_size" yaml:"bulk_page_size"`
}

// AIConfig holds settings for the text-generation integration.
type AIConfig struct {
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// UsageConfig holds usage-accounting tunables.
type UsageConfig struct {
	// OrgID is the organization whose subscription this installation
	// meters against. Empty disables usage accounting.
	OrgID string `mapstructure:"org_id" yaml:"org_id"`

	// DBPath is the location of the subscription/usage database.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// DisplayTTLSec bounds how stale usage reads for display may be.
	DisplayTTLSec int `mapstructure:"display_ttl_sec" yaml:"display_ttl_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Sync     SyncConfig      `mapstructure:"sync" yaml:"sync"`
	AI       AIConfig        `mapstructure:"ai" yaml:"ai"`
	Usage    UsageConfig     `mapstructure:"usage" yaml:"usage"`
	CacheDB  string          `mapstructure:"cache_db" yaml:"cache_db"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/commsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "commsync", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "commsync")
	return &AppConfig{
		Accounts: []AccountConfig{},
		Sync: SyncConfig{
			PollIntervalSec: 120,
			PageSize:        50,
			BulkPageSize:    500,
		},
		AI: AIConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 1024,
		},
		Usage: UsageConfig{
			DBPath:        filepath.Join(dataDir, "usage.sqlite3"),
			DisplayTTLSec: 10,
		},
		CacheDB: filepath.Join(dataDir, "cache.sqlite3"),
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := defaultAppConfig()
	v.SetDefault("sync.poll_interval_sec", defaults.Sync.PollIntervalSec)
	v.SetDefault("sync.page_size", defaults.Sync.PageSize)
	v.SetDefault("sync.bulk_page_size", defaults.Sync.BulkPageSize)
	v.SetDefault("ai.model", defaults.AI.Model)
	v.SetDefault("ai.max_tokens", defaults.AI.MaxTokens)
	v.SetDefault("usage.db_path", defaults.Usage.DBPath)
	v.SetDefault("usage.display_ttl_sec", defaults.Usage.DisplayTTLSec)
	v.SetDefault("cache_db", defaults.CacheDB)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Apply defaults for each account entry.
	for i := range cfg.Accounts {
		if cfg.Accounts[i].PollIntervalSec == 0 {
			cfg.Accounts[i].PollIntervalSec = cfg.Sync.PollIntervalSec
		}
		if !cfg.Accounts[i].Enabled {
			// Viper unmarshals missing bools as false; treat unset as true.
			key := fmt.Sprintf("accounts.%d.enabled", i)
			if !v.IsSet(key) {
				cfg.Accounts[i].Enabled = true
			}
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("accounts", cfg.Accounts)
	v.Set("sync", cfg.Sync)
	v.Set("ai", cfg.AI)
	v.Set("usage", cfg.Usage)
	v.Set("cache_db", cfg.CacheDB)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Account converts an AccountConfig to its runtime Account record.
func (c AccountConfig) Account() Account {
	return Account{
		ID:              c.ID,
		UserID:          c.UserID,
		Label:           c.Label,
		ProviderType:    ProviderType(c.Type),
		BaseURL:         c.BaseURL,
		PollIntervalSec: c.PollIntervalSec,
	}
}
