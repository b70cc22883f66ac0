package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadBotConfigExample(t *testing.T) {
	cfg, err := loadBotConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Client.Address != "127.0.0.1:7777" || cfg.Client.Name != "otto" {
		t.Fatalf("unexpected client config: %+v", cfg.Client)
	}
	if cfg.Client.Personalization.PrimaryColor != "azure" || cfg.Client.Personalization.Avatar != "otter" {
		t.Fatalf("unexpected personalization: %+v", cfg.Client.Personalization)
	}
	if cfg.Client.Personalization.SecondaryColor != "" {
		t.Fatalf("unset secondary color should stay empty: %q", cfg.Client.Personalization.SecondaryColor)
	}
	if cfg.Client.Session.ConnectTimeout != 5*time.Second {
		t.Fatalf("unexpected connect timeout: %v", cfg.Client.Session.ConnectTimeout)
	}
	if cfg.Client.MaxConnectAttempts != 0 {
		t.Fatalf("unexpected max attempts: %d", cfg.Client.MaxConnectAttempts)
	}
	if cfg.Think != 250*time.Millisecond || !cfg.CallBluffs || cfg.StartAt != 3 || cfg.Matches != 1 {
		t.Fatalf("unexpected bot config: %+v", cfg)
	}
}

func TestLoadBotConfigBadThink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.toml")
	if err := os.WriteFile(path, []byte(`think = "fast"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadBotConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
