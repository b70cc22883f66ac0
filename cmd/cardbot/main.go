package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/cardtable/internal/client"
	"github.com/danmuck/cardtable/internal/logging"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to a cardbot TOML config")
	flag.Parse()

	logging.ConfigureRuntime()
	cfg := defaultBotConfig()
	if *configPath != "" {
		loaded, err := loadBotConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cardbot: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "cardbot: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg botConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := newBot(cfg)
	s, err := client.New(cfg.Client, b)
	if err != nil {
		return err
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Close()
	creds, _ := s.Credentials()
	b.setID(creds.PlayerID)
	log.Info().Uint32("player_id", creds.PlayerID).Str("name", cfg.Client.Name).Msg("bot seated")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-b.done:
			if errors.Is(err, client.ErrServerEnded) {
				return nil
			}
			return err
		case p := <-b.intents:
			if cfg.Think > 0 {
				select {
				case <-time.After(cfg.Think):
				case <-ctx.Done():
					return nil
				}
			}
			if err := forward(s, p); err != nil {
				return err
			}
		}
	}
}

func forward(s *client.Session, p protocol.Packet) error {
	switch p := p.(type) {
	case protocol.ActionUpdate:
		return s.Act(p)
	case protocol.StartGame:
		return s.StartGame()
	default:
		return fmt.Errorf("bot produced unexpected %s", p.Type())
	}
}
