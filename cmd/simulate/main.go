// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command simulate raises the spot price of an option pool's underlying
// one unit at a time, recalibrates the pool after every move, trades
// against it once the weights have migrated and prints every calibration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/log"

	"github.com/luxfi/optionpool/config"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config (defaults when empty)")
	steps := flag.Int("steps", 25, "number of one-unit spot price increases")
	places := flag.Int("places", int(defaultPlaces), "decimals printed per cell")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.NewTestLogger(log.InfoLevel)
	if err := simulate(ctx, cfg, logger, *steps, int32(*places), os.Stdout); err != nil {
		logger.Error("simulation failed", "err", err)
		os.Exit(1)
	}
}
