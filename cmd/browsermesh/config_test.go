package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_OverlaysOnlyDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
addr = "127.0.0.1:9001"
provider = "openai"
step_timeout_ms = 5000
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9001" {
		t.Fatalf("addr not overridden: %q", cfg.Addr)
	}
	if cfg.Provider != "openai" {
		t.Fatalf("provider not overridden: %q", cfg.Provider)
	}
	if cfg.StepTimeout != 5*time.Second {
		t.Fatalf("step timeout not overridden: %v", cfg.StepTimeout)
	}
	// Undefined keys keep their defaults.
	if cfg.RelayURL != "ws://127.0.0.1:8765" {
		t.Fatalf("relay url default lost: %q", cfg.RelayURL)
	}
	if cfg.ReadyTimeout != 45*time.Second {
		t.Fatalf("ready timeout default lost: %v", cfg.ReadyTimeout)
	}
}

func TestLoadConfig_RejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `provider = "cohere"`)
	if _, err := loadConfig(path); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
