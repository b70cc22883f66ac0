package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Kind string

const (
	KindServer Kind = "server"
	KindBot    Kind = "bot"
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindServer, KindBot:
		return k, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", raw)
	}
}

// DefaultPath is where each binary looks for its config in the repo.
func DefaultPath(kind Kind) string {
	switch kind {
	case KindBot:
		return "cmd/cardbot/config.toml"
	default:
		return "cmd/cardserver/config.toml"
	}
}

// ServerFile is the cardserver config.toml key set.
type ServerFile struct {
	Addr             string `toml:"addr"`
	AdminListenAddr  string `toml:"admin_listen_addr"`
	NodeName         string `toml:"node_name"`
	Timeout          string `toml:"timeout"`
	Retention        string `toml:"retention"`
	ReapInterval     string `toml:"reap_interval"`
	MinPlayers       int    `toml:"min_players"`
	AutoStartPlayers int    `toml:"auto_start_players"`
	OutboundQueue    int    `toml:"outbound_queue"`
}

// BotFile is the cardbot config.toml key set.
type BotFile struct {
	Addr               string `toml:"addr"`
	Name               string `toml:"name"`
	PrimaryColor       string `toml:"primary_color"`
	SecondaryColor     string `toml:"secondary_color"`
	Avatar             string `toml:"avatar"`
	Timeout            string `toml:"timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	Think              string `toml:"think"`
	CallBluffs         bool   `toml:"call_bluffs"`
	StartAt            int    `toml:"start_at"`
	Matches            int    `toml:"matches"`
}

// Validate strictly decodes path as kind. Unknown keys and malformed
// values are errors.
func Validate(path string, kind Kind) error {
	switch kind {
	case KindServer:
		var cfg ServerFile
		if err := loadStrict(path, &cfg); err != nil {
			return err
		}
		return ValidateServerFile(cfg)
	case KindBot:
		var cfg BotFile
		if err := loadStrict(path, &cfg); err != nil {
			return err
		}
		return ValidateBotFile(cfg)
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

func loadStrict(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	defer f.Close()
	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config has unknown keys (%s): %s", path, strict.String())
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServerFile(cfg ServerFile) error {
	for key, raw := range map[string]string{
		"timeout":       cfg.Timeout,
		"retention":     cfg.Retention,
		"reap_interval": cfg.ReapInterval,
	} {
		if err := checkDuration(key, raw); err != nil {
			return err
		}
	}
	if cfg.MinPlayers != 0 && cfg.MinPlayers < 2 {
		return fmt.Errorf("min_players must be at least 2, got %d", cfg.MinPlayers)
	}
	if cfg.AutoStartPlayers < 0 || cfg.OutboundQueue < 0 {
		return fmt.Errorf("auto_start_players and outbound_queue must not be negative")
	}
	return nil
}

func ValidateBotFile(cfg BotFile) error {
	if err := checkDuration("timeout", cfg.Timeout); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Think) != "" {
		if _, err := time.ParseDuration(strings.TrimSpace(cfg.Think)); err != nil {
			return fmt.Errorf("think: %w", err)
		}
	}
	if cfg.MaxConnectAttempts < 0 || cfg.StartAt < 0 || cfg.Matches < 0 {
		return fmt.Errorf("max_connect_attempts, start_at and matches must not be negative")
	}
	return nil
}

// checkDuration accepts an empty value; anything else must be a positive
// duration.
func checkDuration(key, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: must be positive", key)
	}
	return nil
}
