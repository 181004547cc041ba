// SPDX-License-Identifier: MIT

// snapdog is the multi-room audio control daemon: it drives a Snapcast
// server and exposes zones and clients over HTTP, MQTT and KNX.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/daemon"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapdog: invalid configuration: %v\n", err)
		return 2
	}

	log.Configure(log.Config{
		Level:   cfg.System.LogLevel,
		Service: "snapdog",
		Version: version.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx, cfg); err != nil {
		if errors.Is(err, daemon.ErrStartupValidation) {
			return 2
		}
		logger := log.L()
		logger.Error().Err(err).Str("event", "main.fatal").Msg("daemon failed")
		return 1
	}
	return 0
}
