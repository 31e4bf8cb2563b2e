package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// cliConfig holds the resolved settings shared by the serve and run
// subcommands.
type cliConfig struct {
	Addr         string
	RelayURL     string
	Provider     string
	Model        string
	StepTimeout  time.Duration
	ReadyTimeout time.Duration
	PollInterval time.Duration
	RunLogPath   string
	LogLevel     string
}

func defaultConfig() cliConfig {
	return cliConfig{
		Addr:         "127.0.0.1:8765",
		RelayURL:     "ws://127.0.0.1:8765",
		Provider:     "rule",
		StepTimeout:  30 * time.Second,
		ReadyTimeout: 45 * time.Second,
		PollInterval: 250 * time.Millisecond,
		LogLevel:     "info",
	}
}

// fileConfig maps config.toml keys onto cliConfig fields.
type fileConfig struct {
	Addr           string `toml:"addr"`
	RelayURL       string `toml:"relay_url"`
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	StepTimeoutMS  int64  `toml:"step_timeout_ms"`
	ReadyTimeoutMS int64  `toml:"ready_timeout_ms"`
	PollIntervalMS int64  `toml:"poll_interval_ms"`
	RunLog         string `toml:"run_log"`
	LogLevel       string `toml:"log_level"`
}

// loadConfig overlays a TOML file onto the defaults. Only keys actually
// present in the file override anything.
func loadConfig(path string) (cliConfig, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("relay_url") {
		cfg.RelayURL = strings.TrimSpace(raw.RelayURL)
	}
	if meta.IsDefined("provider") {
		cfg.Provider = strings.TrimSpace(raw.Provider)
	}
	if meta.IsDefined("model") {
		cfg.Model = strings.TrimSpace(raw.Model)
	}
	if meta.IsDefined("step_timeout_ms") {
		cfg.StepTimeout = time.Duration(raw.StepTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("ready_timeout_ms") {
		cfg.ReadyTimeout = time.Duration(raw.ReadyTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("poll_interval_ms") {
		cfg.PollInterval = time.Duration(raw.PollIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("run_log") {
		cfg.RunLogPath = strings.TrimSpace(raw.RunLog)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}

	switch cfg.Provider {
	case "rule", "openai", "anthropic":
	default:
		return cliConfig{}, fmt.Errorf("load config: unsupported provider %q (expected rule, openai or anthropic)", cfg.Provider)
	}

	return cfg, nil
}
