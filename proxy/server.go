// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

// Server runs the proxy's HTTP listeners: a TCP listener for sandbox
// traffic and an optional Unix socket for host-local callers.
type Server struct {
	config     *Config
	handler    *Handler
	logger     *slog.Logger
	httpServer *http.Server

	mu        sync.Mutex
	listeners []net.Listener
}

// NewServer creates a proxy server from a validated config and a
// credential source. The credential source is not closed by the server;
// the caller retains ownership.
func NewServer(config *Config, credential CredentialSource, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	upstream, err := url.Parse(config.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream URL: %w", err)
	}

	handler, err := NewHandler(HandlerConfig{
		Upstream:        upstream,
		IdentityHeader:  config.IdentityHeader,
		CredentialName:  config.CredentialName,
		Credential:      credential,
		UpstreamTimeout: config.UpstreamTimeout(),
		MaxConcurrent:   config.MaxConcurrent,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	mux.Handle("/", handler)

	return &Server{
		config:  config,
		handler: handler,
		logger:  logger,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Serve binds the configured listeners and serves until ctx is
// cancelled, then shuts down gracefully. In-flight streams get a grace
// period to finish before being cut off.
func (s *Server) Serve(ctx context.Context) error {
	tcpListener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.ListenAddress, err)
	}
	s.addListener(tcpListener)
	s.logger.Info("proxy listening", "address", tcpListener.Addr().String())

	if s.config.SocketPath != "" {
		// Remove a stale socket from a previous run.
		if err := os.Remove(s.config.SocketPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale socket: %w", err)
		}
		unixListener, err := net.Listen("unix", s.config.SocketPath)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", s.config.SocketPath, err)
		}
		s.addListener(unixListener)
		s.logger.Info("proxy listening", "socket", s.config.SocketPath)
	}

	serveErrors := make(chan error, len(s.listeners))
	for _, listener := range s.listeners {
		go func(l net.Listener) {
			serveErrors <- s.httpServer.Serve(l)
		}(listener)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	case err := <-serveErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	}
}

func (s *Server) addListener(listener net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Addr returns the bound TCP address, useful when listening on port 0.
// Returns empty before Serve has bound the listener.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return ""
	}
	return s.listeners[0].Addr().String()
}
