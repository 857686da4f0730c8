package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"strings"

	"CoinPull/internal/di"
	"CoinPull/pkg/config"
	"CoinPull/pkg/server"
	"CoinPull/pkg/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", "", "override collector.mode (stream|poll|history)")
	exchanges := flag.String("exchanges", "", "override collector.exchanges, comma separated")
	flag.Parse()

	os.Exit(run(*configPath, *mode, *exchanges))
}

func run(configPath, mode, exchanges string) int {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		log.Printf("config load failed: %v", err)
		return 2
	}
	if mode != "" {
		cfg.Collector.Mode = mode
	}
	if exchanges != "" {
		cfg.Collector.Exchanges = util.SplitList(exchanges)
	}
	if mode != "" || exchanges != "" {
		if err := cfg.Validate(); err != nil {
			log.Printf("invalid flags: %v", err)
			return 2
		}
	}

	log.Printf("coinpull env=%s mode=%s exchanges=%s mirror=%s",
		cfg.Environment, cfg.Collector.Mode, strings.Join(cfg.Collector.Exchanges, ","), cfg.Mirror.Backend)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Printf("app initialization failed: %v", err)
		return 1
	}
	defer cleanup()

	// blocks until every task is terminal or a signal arrives
	if err := app.Run(context.Background()); err != nil {
		if errors.Is(err, server.ErrNothingToCollect) {
			log.Printf("nothing to collect on %s", strings.Join(cfg.Collector.Exchanges, ","))
		} else {
			log.Printf("app error: %v", err)
		}
		return 1
	}
	return 0
}
