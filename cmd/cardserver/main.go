package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/cardtable/internal/logging"
	"github.com/danmuck/cardtable/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a cardserver TOML config")
	flag.Parse()

	logging.ConfigureRuntime()
	cfg := server.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cardserver: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	svc := server.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "cardserver: %v\n", err)
		os.Exit(1)
	}
}
