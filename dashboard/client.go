// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashboard is the HTTP client for the artifact dashboard the
// syncer uploads run logs to. Uploads are idempotent PUTs: the
// dashboard keys artifacts by (space, name) and replaces the previous
// version, so re-sending an artifact after a syncer restart is
// harmless.
package dashboard

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/airlock-foundation/airlock/lib/secret"
)

// Client uploads artifacts to a dashboard instance.
type Client struct {
	baseURL    string
	token      *secret.Buffer
	httpClient *http.Client
	encoder    *zstd.Encoder
	logger     *slog.Logger
}

// NewClient creates a dashboard client. The token buffer is borrowed,
// not owned; the caller closes it after the client is done.
func NewClient(baseURL string, token *secret.Buffer, logger *slog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("dashboard URL is required")
	}
	if token == nil {
		return nil, fmt.Errorf("dashboard token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// EncodeAll-only encoder; nil writer is the documented pattern.
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		encoder:    encoder,
		logger:     logger,
	}, nil
}

// Upload ships one artifact, replacing any previous version. The body
// is zstd-compressed; the digest header covers the uncompressed bytes
// so the dashboard can verify after decompression.
func (c *Client) Upload(ctx context.Context, spaceID, name string, data []byte, modTime time.Time) error {
	if spaceID == "" {
		return fmt.Errorf("space ID is required")
	}
	if name == "" {
		return fmt.Errorf("artifact name is required")
	}

	digest := blake3.Sum256(data)
	compressed := c.encoder.EncodeAll(data, nil)

	uploadURL := fmt.Sprintf("%s/api/spaces/%s/artifacts/%s?overwrite=true",
		c.baseURL, url.PathEscape(spaceID), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token.String())
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "zstd")
	req.Header.Set("X-Artifact-Digest", hex.EncodeToString(digest[:]))
	req.Header.Set("X-Artifact-Mtime", modTime.UTC().Format(time.RFC3339))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s to space %s: %w", name, spaceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("uploading %s to space %s: dashboard returned %d: %s",
			name, spaceID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Debug("artifact uploaded",
		"space", spaceID,
		"artifact", name,
		"raw_bytes", len(data),
		"compressed_bytes", len(compressed),
	)
	return nil
}
