// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Airlock-agent runs inside the sandbox. It speaks the line-oriented
// turn protocol on stdin/stdout, drives the model through the
// credential proxy, and records telemetry to the shared volume for the
// host-side syncer to pick up.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airlock-foundation/airlock/agent"
	"github.com/airlock-foundation/airlock/bridge"
	"github.com/airlock-foundation/airlock/lib/version"
	"github.com/airlock-foundation/airlock/telemetry"
)

const defaultModel = "claude-sonnet-4-5"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var workDir string
	var runName string
	var showVersion bool

	flag.StringVar(&workDir, "workdir", "", "workspace directory for tools (default: current directory)")
	flag.StringVar(&runName, "run", "agent", "run name for the telemetry log")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("airlock-agent %s\n", version.Info())
		return nil
	}

	// Stdout carries the turn protocol; logs go to stderr only.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	sandboxID := os.Getenv("AIRLOCK_SANDBOX_ID")
	if sandboxID == "" {
		return fmt.Errorf("AIRLOCK_SANDBOX_ID is required")
	}
	proxyURL := os.Getenv("AIRLOCK_PROXY_URL")
	if proxyURL == "" {
		return fmt.Errorf("AIRLOCK_PROXY_URL is required")
	}
	model := os.Getenv("AIRLOCK_MODEL")
	if model == "" {
		model = defaultModel
	}

	logger.Info("starting airlock-agent",
		"version", version.Info(),
		"proxy_url", proxyURL,
		"model", model,
	)

	var recorder *telemetry.Recorder
	if volumeRoot := os.Getenv("AIRLOCK_VOLUME"); volumeRoot != "" {
		if spaceID := os.Getenv("AIRLOCK_SPACE_ID"); spaceID != "" {
			if err := telemetry.WriteSpaceID(volumeRoot, spaceID); err != nil {
				return fmt.Errorf("writing space ID: %w", err)
			}
		}
		var err error
		recorder, err = telemetry.NewRecorder(volumeRoot, runName)
		if err != nil {
			return fmt.Errorf("opening telemetry log: %w", err)
		}
		defer recorder.Close()
		logger.Info("telemetry enabled", "volume", volumeRoot, "run", runName)
	}

	session, err := agent.NewSession(agent.Config{
		APIKey:           sandboxID,
		BaseURL:          proxyURL,
		Model:            model,
		WorkingDirectory: workDir,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	client := bridge.Client(session)
	if recorder != nil {
		client = &recordingClient{inner: session, recorder: recorder, logger: logger}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	turnBridge := &bridge.Bridge{
		Input:  os.Stdin,
		Output: os.Stdout,
		Client: client,
		Logger: logger,
	}
	return turnBridge.Run(ctx)
}

// recordingClient wraps the session to record per-turn telemetry.
type recordingClient struct {
	inner    bridge.Client
	recorder *telemetry.Recorder
	logger   *slog.Logger
	turn     int64
}

func (c *recordingClient) Turn(ctx context.Context, input string, emit func(bridge.Event)) error {
	startTime := time.Now()
	eventCount := 0

	err := c.inner.Turn(ctx, input, func(event bridge.Event) {
		eventCount++
		emit(event)
	})

	c.turn++
	records := []telemetry.Record{
		{Time: time.Now(), Name: "turn_seconds", Value: time.Since(startTime).Seconds(), Step: c.turn},
		{Time: time.Now(), Name: "turn_events", Value: float64(eventCount), Step: c.turn},
	}
	for _, record := range records {
		if recordErr := c.recorder.Record(record); recordErr != nil {
			c.logger.Warn("telemetry record failed", "error", recordErr)
		}
	}
	return err
}
