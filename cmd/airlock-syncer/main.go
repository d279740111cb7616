// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Airlock-syncer runs on the host, polling the shared artifact volume
// and shipping changed run logs to the dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airlock-foundation/airlock/dashboard"
	"github.com/airlock-foundation/airlock/lib/secret"
	"github.com/airlock-foundation/airlock/lib/version"
	"github.com/airlock-foundation/airlock/syncer"
	"github.com/airlock-foundation/airlock/volume"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var volumeRoot string
	var dashboardURL string
	var tokenFile string
	var intervalSeconds int
	var showVersion bool

	flag.StringVar(&volumeRoot, "volume", "", "mount point of the shared artifact volume (required)")
	flag.StringVar(&dashboardURL, "dashboard", "", "dashboard base URL (required)")
	flag.StringVar(&tokenFile, "token-file", "", "file holding the dashboard token; \"-\" reads stdin (default: AIRLOCK_DASHBOARD_TOKEN env var)")
	flag.IntVar(&intervalSeconds, "interval-seconds", 30, "poll interval in seconds")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("airlock-syncer %s\n", version.Info())
		return nil
	}

	if volumeRoot == "" {
		return fmt.Errorf("-volume is required")
	}
	if dashboardURL == "" {
		return fmt.Errorf("-dashboard is required")
	}
	if intervalSeconds <= 0 {
		return fmt.Errorf("-interval-seconds must be positive")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	token, err := loadToken(tokenFile)
	if err != nil {
		return err
	}
	defer token.Close()

	client, err := dashboard.NewClient(dashboardURL, token, logger)
	if err != nil {
		return fmt.Errorf("creating dashboard client: %w", err)
	}

	logger.Info("starting airlock-syncer",
		"version", version.Info(),
		"volume", volumeRoot,
		"dashboard", dashboardURL,
		"interval_seconds", intervalSeconds,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	artifactSyncer := &syncer.Syncer{
		Volume:   &volume.Dir{Root: volumeRoot},
		Uploader: client,
		Interval: time.Duration(intervalSeconds) * time.Second,
		Logger:   logger,
	}
	if err := artifactSyncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// loadToken reads the dashboard token from the given file ("-" for
// stdin) or falls back to the AIRLOCK_DASHBOARD_TOKEN env var.
func loadToken(tokenFile string) (*secret.Buffer, error) {
	if tokenFile != "" {
		token, err := secret.ReadFromPath(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading token: %w", err)
		}
		return token, nil
	}
	value := os.Getenv("AIRLOCK_DASHBOARD_TOKEN")
	if value == "" {
		return nil, fmt.Errorf("no dashboard token: set -token-file or AIRLOCK_DASHBOARD_TOKEN")
	}
	token, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}
	os.Unsetenv("AIRLOCK_DASHBOARD_TOKEN")
	return token, nil
}
