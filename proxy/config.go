// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the proxy server.
type Config struct {
	// ListenAddress is the TCP address the sandbox-facing listener
	// binds to (e.g., "0.0.0.0:8700"). Required: sandboxes reach the
	// proxy over the isolated network, not the host filesystem.
	ListenAddress string `yaml:"listen_address"`

	// SocketPath is an optional Unix socket for host-local callers
	// (health checks, debugging). Not visible inside sandboxes.
	SocketPath string `yaml:"socket_path"`

	// Upstream is the inference API base URL
	// (e.g., "https://api.anthropic.com"). Required.
	Upstream string `yaml:"upstream"`

	// IdentityHeader is the header carrying the sandbox identity token
	// on inbound requests. Its value is replaced with the real
	// credential before forwarding. Defaults to "x-api-key".
	IdentityHeader string `yaml:"identity_header"`

	// CredentialName is the name of the credential looked up in the
	// CredentialSource chain. Defaults to "inference-api-key".
	CredentialName string `yaml:"credential"`

	// MaxConcurrent caps the number of in-flight upstream requests.
	// Additional requests wait for a slot (or give up when the caller
	// disconnects). Defaults to 64.
	MaxConcurrent int `yaml:"max_concurrent"`

	// UpstreamTimeoutSeconds bounds a single upstream call including
	// the full streamed response body. Defaults to 300. Inference
	// streams are long-lived but not unbounded.
	UpstreamTimeoutSeconds int `yaml:"upstream_timeout_seconds"`
}

// UpstreamTimeout returns the configured timeout as a duration.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// LoadConfig loads configuration from a YAML file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.IdentityHeader == "" {
		c.IdentityHeader = "x-api-key"
	}
	if c.CredentialName == "" {
		c.CredentialName = "inference-api-key"
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 64
	}
	if c.UpstreamTimeoutSeconds == 0 {
		c.UpstreamTimeoutSeconds = 300
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}
	if c.Upstream == "" {
		return fmt.Errorf("upstream is required")
	}
	upstream, err := url.Parse(c.Upstream)
	if err != nil {
		return fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme != "http" && upstream.Scheme != "https" {
		return fmt.Errorf("upstream URL must be http or https, got %q", upstream.Scheme)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	if c.UpstreamTimeoutSeconds < 0 {
		return fmt.Errorf("upstream_timeout_seconds must not be negative")
	}
	return nil
}
