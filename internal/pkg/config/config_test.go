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
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
remote_executor:
  base_url: "https://executor.example.com"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.WebService.Port != 16402 {
		t.Fatalf("expected default port 16402, got %d", cfg.WebService.Port)
	}
	if cfg.RemoteExecutor.PollInterval() != 5*time.Second {
		t.Fatalf("expected default 5s poll interval, got %s", cfg.RemoteExecutor.PollInterval())
	}
	if cfg.RemoteExecutor.MaxPollAttempts != 120 {
		t.Fatalf("expected default 120 attempts, got %d", cfg.RemoteExecutor.MaxPollAttempts)
	}
	if cfg.RemoteExecutor.Retry.MaxAttempts != 4 {
		t.Fatalf("expected default 4 retry attempts, got %d", cfg.RemoteExecutor.Retry.MaxAttempts)
	}
	if cfg.State.Debounce() != 300*time.Millisecond {
		t.Fatalf("expected default 300ms debounce, got %s", cfg.State.Debounce())
	}
	if cfg.RemoteExecutor.BaseURL != "https://executor.example.com" {
		t.Fatalf("explicit values should survive defaults: %s", cfg.RemoteExecutor.BaseURL)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
web_service:
  host: "127.0.0.1"
  port: 9000
remote_executor:
  poll_interval_ms: 250
  max_poll_attempts: 10
state:
  debounce_ms: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.GetWebServiceAddr() != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %s", cfg.GetWebServiceAddr())
	}
	if cfg.RemoteExecutor.PollInterval() != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", cfg.RemoteExecutor.PollInterval())
	}
	if cfg.RemoteExecutor.MaxPollAttempts != 10 {
		t.Fatalf("unexpected attempts %d", cfg.RemoteExecutor.MaxPollAttempts)
	}
	if cfg.State.Debounce() != 50*time.Millisecond {
		t.Fatalf("unexpected debounce %s", cfg.State.Debounce())
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("loading a missing file should fail")
	}
}
