package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/cardtable/internal/client"
	"github.com/danmuck/cardtable/internal/config"
	"github.com/danmuck/cardtable/internal/protocol/session"
)

type botConfig struct {
	Client     client.Config
	Think      time.Duration
	CallBluffs bool
	// StartAt makes the host bot start once this many players are online.
	StartAt int
	// Matches stops the bot after this many finished matches; 0 plays on.
	Matches int
}

func defaultBotConfig() botConfig {
	cc := client.DefaultConfig()
	cc.Address = "127.0.0.1:7777"
	cc.Name = "cardbot"
	return botConfig{
		Client:  cc,
		Think:   500 * time.Millisecond,
		StartAt: 2,
	}
}

func loadBotConfig(path string) (botConfig, error) {
	cfg := defaultBotConfig()

	var raw config.BotFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return botConfig{}, fmt.Errorf("load cardbot config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Client.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("name") {
		cfg.Client.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("primary_color") {
		cfg.Client.Personalization.PrimaryColor = strings.TrimSpace(raw.PrimaryColor)
	}
	if meta.IsDefined("secondary_color") {
		cfg.Client.Personalization.SecondaryColor = strings.TrimSpace(raw.SecondaryColor)
	}
	if meta.IsDefined("avatar") {
		cfg.Client.Personalization.Avatar = strings.TrimSpace(raw.Avatar)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return botConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Client.Session = session.FromTimeout(d)
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Client.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("think") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Think))
		if err != nil {
			return botConfig{}, fmt.Errorf("parse think: %w", err)
		}
		cfg.Think = d
	}
	if meta.IsDefined("call_bluffs") {
		cfg.CallBluffs = raw.CallBluffs
	}
	if meta.IsDefined("start_at") {
		cfg.StartAt = raw.StartAt
	}
	if meta.IsDefined("matches") {
		cfg.Matches = raw.Matches
	}
	return cfg, nil
}
