package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("TGTG_ACCESS_TOKEN", "access")
	t.Setenv("TGTG_REFRESH_TOKEN", "refresh")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LedgerBackend != BackendSQLite {
		t.Errorf("LedgerBackend = %q, want sqlite", cfg.LedgerBackend)
	}
	if cfg.LedgerDBPath != "tgtg_offers.db" {
		t.Errorf("LedgerDBPath = %q", cfg.LedgerDBPath)
	}
	if cfg.CheckInterval != 15*time.Minute {
		t.Errorf("CheckInterval = %v, want 15m", cfg.CheckInterval)
	}
	if cfg.SendDelay != time.Second {
		t.Errorf("SendDelay = %v, want 1s", cfg.SendDelay)
	}
	if cfg.AutoCancelAfter != 10*time.Minute {
		t.Errorf("AutoCancelAfter = %v, want 10m", cfg.AutoCancelAfter)
	}
	if cfg.Retention != 7*24*time.Hour {
		t.Errorf("Retention = %v, want 168h", cfg.Retention)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"missing bot token", "TELEGRAM_BOT_TOKEN"},
		{"missing chat id", "TELEGRAM_CHAT_ID"},
		{"missing access token", "TGTG_ACCESS_TOKEN"},
		{"missing refresh token", "TGTG_REFRESH_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			if _, err := Load(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHECK_INTERVAL", "5m")
	t.Setenv("RETENTION_DAYS", "3")
	t.Setenv("LEDGER_DB_PATH", "/tmp/offers.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CheckInterval != 5*time.Minute {
		t.Errorf("CheckInterval = %v, want 5m", cfg.CheckInterval)
	}
	if cfg.Retention != 3*24*time.Hour {
		t.Errorf("Retention = %v, want 72h", cfg.Retention)
	}
	if cfg.LedgerDBPath != "/tmp/offers.db" {
		t.Errorf("LedgerDBPath = %q", cfg.LedgerDBPath)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad backend", "LEDGER_BACKEND", "postgres"},
		{"bad interval", "CHECK_INTERVAL", "soon"},
		{"bad retention", "RETENTION_DAYS", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_FirestoreRequiresProject(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEDGER_BACKEND", "firestore")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when firestore backend has no project")
	}

	t.Setenv("GOOGLE_CLOUD_PROJECT", "my-project")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LedgerBackend != BackendFirestore {
		t.Errorf("LedgerBackend = %q, want firestore", cfg.LedgerBackend)
	}
}
