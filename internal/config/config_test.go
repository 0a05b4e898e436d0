package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
environment:
  mode: paper
  log_level: debug
broker:
  provider: tradier
  api_key: abc123
  sandbox: true
settlement:
  timezone: America/New_York
  schedule: "30 17 * * 1-5"
  quote_timeout: 5s
  max_concurrent_quotes: 8
storage:
  path: /tmp/account.json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsPaperTrading() {
		t.Error("mode paper not detected")
	}
	if cfg.QuoteTimeoutDuration() != 5*time.Second {
		t.Errorf("quote timeout = %v", cfg.QuoteTimeoutDuration())
	}
	if cfg.Settlement.MaxConcurrentQuotes != 8 {
		t.Errorf("max_concurrent_quotes = %d", cfg.Settlement.MaxConcurrentQuotes)
	}
	if cfg.Location().String() != "America/New_York" {
		t.Errorf("location = %s", cfg.Location())
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SETTLER_KEY", "secret-token")
	path := writeConfig(t, `
environment:
  mode: live
broker:
  api_key: ${TEST_SETTLER_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.APIKey != "secret-token" {
		t.Errorf("api_key = %q, want expanded env var", cfg.Broker.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Environment.Mode != "paper" {
		t.Errorf("mode default = %q", cfg.Environment.Mode)
	}
	if cfg.Environment.LogLevel != "info" {
		t.Errorf("log_level default = %q", cfg.Environment.LogLevel)
	}
	if cfg.Settlement.MaxConcurrentQuotes != 4 {
		t.Errorf("max_concurrent_quotes default = %d", cfg.Settlement.MaxConcurrentQuotes)
	}
	if cfg.Storage.Path != "data/account.json" {
		t.Errorf("storage path default = %q", cfg.Storage.Path)
	}
	if cfg.QuoteTimeoutDuration() != 10*time.Second {
		t.Errorf("quote timeout default = %v", cfg.QuoteTimeoutDuration())
	}
	if cfg.Location() != time.UTC {
		t.Errorf("location default = %v", cfg.Location())
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad mode", Config{Environment: EnvironmentConfig{Mode: "real-money"}}},
		{"live without key", Config{Environment: EnvironmentConfig{Mode: "live"}}},
		{"bad timezone", Config{Settlement: SettlementConfig{Timezone: "Mars/Olympus"}}},
		{"bad quote timeout", Config{Settlement: SettlementConfig{QuoteTimeout: "soon"}}},
		{"negative concurrency", Config{Settlement: SettlementConfig{MaxConcurrentQuotes: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestQuoteTimeoutDuration_BadValueFallsBack(t *testing.T) {
	cfg := &Config{Settlement: SettlementConfig{QuoteTimeout: "-3s"}}
	if got := cfg.QuoteTimeoutDuration(); got != 10*time.Second {
		t.Errorf("negative timeout should fall back to default, got %v", got)
	}
}
