package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/cardtable/internal/config"
	"github.com/danmuck/cardtable/internal/protocol/session"
	"github.com/danmuck/cardtable/internal/server"
)

func loadServiceConfig(path string) (server.ServiceConfig, error) {
	cfg := server.DefaultServiceConfig()

	var raw config.ServerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return server.ServiceConfig{}, fmt.Errorf("load cardserver config: %w", err)
	}

	if meta.IsDefined("addr") {
		if addr := strings.TrimSpace(raw.Addr); addr != "" {
			cfg.ListenAddr = addr
		}
	}

	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}

	if meta.IsDefined("node_name") {
		if name := strings.TrimSpace(raw.NodeName); name != "" {
			cfg.NodeName = name
		}
	}

	// timeout rebuilds every session timeout; later keys refine it.
	if meta.IsDefined("timeout") {
		d, err := parseDuration("timeout", raw.Timeout)
		if err != nil {
			return server.ServiceConfig{}, err
		}
		cfg.Session = session.FromTimeout(d)
	}

	if meta.IsDefined("retention") {
		d, err := parseDuration("retention", raw.Retention)
		if err != nil {
			return server.ServiceConfig{}, err
		}
		cfg.Retention = d
	}

	if meta.IsDefined("reap_interval") {
		d, err := parseDuration("reap_interval", raw.ReapInterval)
		if err != nil {
			return server.ServiceConfig{}, err
		}
		cfg.ReapInterval = d
	}

	if meta.IsDefined("min_players") {
		if raw.MinPlayers < 2 {
			return server.ServiceConfig{}, fmt.Errorf("min_players must be at least 2, got %d", raw.MinPlayers)
		}
		cfg.Game.MinPlayers = raw.MinPlayers
	}

	if meta.IsDefined("auto_start_players") {
		cfg.Game.AutoStartPlayers = raw.AutoStartPlayers
	}

	if meta.IsDefined("outbound_queue") {
		cfg.Session.OutboundQueue = raw.OutboundQueue
	}

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse %s: must be positive", key)
	}
	return d, nil
}
