package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sunsense/internal/config"
	"sunsense/internal/logger"
	"sunsense/internal/processor"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (overrides SUNSENSE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log := logger.WithComponent("main")

	p, err := processor.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build processor")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil {
		log.Error().Err(err).Msg("processor exited")
		os.Exit(1)
	}
	log.Info().Msg("exited")
}
