// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Airlock-proxy is the credential-isolating proxy between sandboxed
// agents and the inference API. Sandboxes send their identity token;
// the proxy substitutes the real credential and streams responses back
// unbuffered.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/airlock-foundation/airlock/lib/version"
	"github.com/airlock-foundation/airlock/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var credentialFile string
	var credentialPrefix string
	var credentialStdin bool
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "path to config file (required)")
	flag.StringVar(&credentialFile, "credential-file", "", "path to credentials file (key=value format, more secure than env vars)")
	flag.StringVar(&credentialPrefix, "credential-prefix", "AIRLOCK_", "prefix for environment variable credentials (dev mode)")
	flag.BoolVar(&credentialStdin, "credential-stdin", false, "read a CBOR credential payload from stdin (production delivery)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("airlock-proxy %s\n", version.Info())
		return nil
	}

	if configPath == "" {
		return fmt.Errorf("-config is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	config, err := proxy.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Info("starting airlock-proxy",
		"version", version.Info(),
		"listen_address", config.ListenAddress,
		"upstream", config.Upstream,
	)

	// Credential sources in priority order:
	// 1. Stdin payload (production — never touches env or disk)
	// 2. File-based credentials (secure dev - file not visible in /proc)
	// 3. Environment variables (fallback - WARNING: visible in /proc/*/environ)
	var sources []proxy.CredentialSource
	if credentialStdin {
		pipeSource, err := proxy.ReadPipeCredentials(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin credentials: %w", err)
		}
		sources = append(sources, pipeSource)
		logger.Info("loaded credentials from stdin")
	}
	if credentialFile != "" {
		sources = append(sources, &proxy.FileCredentialSource{Path: credentialFile})
		logger.Info("using credential file", "path", credentialFile)
	}
	sources = append(sources, &proxy.EnvCredentialSource{Prefix: credentialPrefix})
	credentialSource := &proxy.ChainCredentialSource{Sources: sources}
	defer credentialSource.Close()

	server, err := proxy.NewServer(config, credentialSource, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
