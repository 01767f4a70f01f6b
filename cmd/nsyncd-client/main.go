// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/nsyncd/internal/client"
	"github.com/nishisan-dev/nsyncd/internal/config"
	"github.com/nishisan-dev/nsyncd/internal/logging"
)

func main() {
	configPath := flag.String("config", "/etc/nsyncd/client.yaml", "path to client config file")
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	engine := client.NewEngine(cfg, logger)
	if err := engine.Run(ctx); err != nil {
		logger.Error("client error", "error", err)
		os.Exit(1)
	}
}
