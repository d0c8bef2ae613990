package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing config must yield defaults, got %v", err)
	}
	if cfg.Sync.PollIntervalSec != 120 {
		t.Errorf("expected default poll interval 120, got %d", cfg.Sync.PollIntervalSec)
	}
	if cfg.Sync.PageSize != 50 || cfg.Sync.BulkPageSize != 500 {
		t.Errorf("expected default page sizes, got %+v", cfg.Sync)
	}
	if cfg.Usage.DisplayTTLSec != 10 {
		t.Errorf("expected default display TTL 10s, got %d", cfg.Usage.DisplayTTLSec)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	in := &AppConfig{
		Accounts: []AccountConfig{
			{
				ID:      "acct-1",
				UserID:  "user-1",
				Type:    "imap",
				Label:   "Work Mail",
				BaseURL: "imaps://mail.example.com:993",
				Enabled: true,
			},
		},
		Sync:    SyncConfig{PollIntervalSec: 60, PageSize: 25, BulkPageSize: 300},
		AI:      AIConfig{Model: "test-model", MaxTokens: 512},
		Usage:   UsageConfig{OrgID: "org-1", DBPath: "/tmp/usage.db", DisplayTTLSec: 10},
		CacheDB: "/tmp/cache.db",
	}

	if err := SaveConfig(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(out.Accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(out.Accounts))
	}
	acct := out.Accounts[0]
	if acct.ID != "acct-1" || acct.Type != "imap" || acct.Label != "Work Mail" {
		t.Errorf("account fields lost: %+v", acct)
	}
	if acct.BaseURL != "imaps://mail.example.com:993" {
		t.Errorf("base url lost: %v", acct.BaseURL)
	}
	if out.Sync.PollIntervalSec != 60 {
		t.Errorf("sync settings lost: %+v", out.Sync)
	}
	if out.Usage.OrgID != "org-1" {
		t.Errorf("usage settings lost: %+v", out.Usage)
	}
}

func TestLoadConfigDefaultsAccountFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
accounts:
  - id: acct-1
    user_id: user-1
    type: gmail
sync:
  poll_interval_sec: 90
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(cfg.Accounts))
	}
	acct := cfg.Accounts[0]
	if !acct.Enabled {
		t.Error("an account without an enabled key defaults to enabled")
	}
	if acct.PollIntervalSec != 90 {
		t.Errorf("expected account to inherit sync interval, got %d", acct.PollIntervalSec)
	}
}
