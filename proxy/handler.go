// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Handler forwards sandbox requests to the upstream inference API with
// the real credential substituted for the sandbox identity token. It
// implements http.Handler for the catch-all POST route.
//
// No mutable state is shared across requests: the credential source is
// read-only after startup and the concurrency semaphore is the only
// coordination point.
type Handler struct {
	upstream        *url.URL
	identityHeader  string
	credentialName  string
	credential      CredentialSource
	upstreamTimeout time.Duration
	slots           chan struct{}
	client          *http.Client
	logger          *slog.Logger
}

// HandlerConfig holds configuration for creating a Handler.
type HandlerConfig struct {
	// Upstream is the parsed base URL of the inference API.
	Upstream *url.URL

	// IdentityHeader names the inbound header carrying the sandbox
	// identity token.
	IdentityHeader string

	// CredentialName is looked up in Credential for the real key.
	CredentialName string

	// Credential provides the real upstream credential.
	Credential CredentialSource

	// UpstreamTimeout bounds one upstream call end to end, including
	// the streamed body.
	UpstreamTimeout time.Duration

	// MaxConcurrent caps in-flight upstream requests. Zero or
	// negative means unbounded.
	MaxConcurrent int

	// Logger for request logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewHandler creates a forwarding handler.
func NewHandler(config HandlerConfig) (*Handler, error) {
	if config.Upstream == nil {
		return nil, fmt.Errorf("upstream URL is required")
	}
	if config.IdentityHeader == "" {
		return nil, fmt.Errorf("identity header is required")
	}
	if config.Credential == nil {
		return nil, fmt.Errorf("credential source is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var slots chan struct{}
	if config.MaxConcurrent > 0 {
		slots = make(chan struct{}, config.MaxConcurrent)
	}

	// No client-level timeout: the per-request context carries the
	// deadline so it covers the streamed body, not just the headers.
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Handler{
		upstream:        config.Upstream,
		identityHeader:  config.IdentityHeader,
		credentialName:  config.CredentialName,
		credential:      config.Credential,
		upstreamTimeout: config.UpstreamTimeout,
		slots:           slots,
		client:          client,
		logger:          logger,
	}, nil
}

// ServeHTTP forwards one request. The identity header must be present;
// its value is discarded and replaced with the real credential. Host
// and Content-Length are re-derived by the transport and never copied.
// The upstream response is streamed back with a flush per chunk.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Header.Get(h.identityHeader) == "" {
		h.logger.Warn("request missing identity header",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		http.Error(w, fmt.Sprintf("missing %s header", h.identityHeader), http.StatusBadRequest)
		return
	}

	credential := h.credential.Get(h.credentialName)
	if credential == nil {
		h.logger.Error("upstream credential unavailable", "credential", h.credentialName)
		http.Error(w, "credential unavailable", http.StatusServiceUnavailable)
		return
	}

	// Acquire a concurrency slot, giving up if the caller goes away.
	if h.slots != nil {
		select {
		case h.slots <- struct{}{}:
			defer func() { <-h.slots }()
		case <-r.Context().Done():
			return
		}
	}

	ctx := r.Context()
	if h.upstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.upstreamTimeout)
		defer cancel()
	}

	upstreamURL := *h.upstream
	upstreamURL.Path = singleJoiningSlash(h.upstream.Path, r.URL.Path)
	upstreamURL.RawQuery = r.URL.RawQuery

	upstreamReq, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), r.Body)
	if err != nil {
		h.logger.Error("failed to build upstream request", "error", err)
		http.Error(w, "failed to build request", http.StatusInternalServerError)
		return
	}
	upstreamReq.ContentLength = r.ContentLength

	// Copy headers minus hop-by-hop and the identity header. Host and
	// Content-Length are excluded implicitly: Host never appears in
	// r.Header and Content-Length is set from ContentLength above.
	for key, values := range r.Header {
		if isHopByHopHeader(key) || strings.EqualFold(key, h.identityHeader) {
			continue
		}
		for _, value := range values {
			upstreamReq.Header.Add(key, value)
		}
	}
	upstreamReq.Header.Set(h.identityHeader, credential.String())

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		h.logger.Error("upstream request failed",
			"path", r.URL.Path,
			"error", err,
			"duration", time.Since(startTime),
		)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	bytesSent, streamErr := h.streamResponse(w, resp)

	logger := h.logger.With(
		"path", r.URL.Path,
		"status", resp.StatusCode,
		"bytes", bytesSent,
		"duration", time.Since(startTime),
	)
	if streamErr != nil {
		// Truncation, not a crash: the caller sees the stream end
		// early and retries the whole logical turn.
		logger.Warn("stream ended early", "error", streamErr)
		return
	}
	logger.Info("proxied request")
}

// streamResponse relays the upstream body chunk by chunk, flushing
// after every read so incremental SSE tokens are visible to the caller
// immediately. Returns the byte count and the first error encountered.
func (h *Handler) streamResponse(w http.ResponseWriter, resp *http.Response) (int64, error) {
	for key, values := range resp.Header {
		if isHopByHopHeader(key) || strings.EqualFold(key, "Content-Length") {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	// The client-facing stream is always event-stream framed: partial
	// delivery must survive every buffering layer between here and the
	// SDK inside the sandbox.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	buffer := make([]byte, 4096)
	var total int64
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			written, writeErr := w.Write(buffer[:n])
			total += int64(written)
			if writeErr != nil {
				return total, fmt.Errorf("writing to client: %w", writeErr)
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return total, nil
			}
			return total, fmt.Errorf("reading upstream: %w", readErr)
		}
	}
}

var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

func isHopByHopHeader(name string) bool {
	return hopByHopHeaders[strings.ToLower(name)]
}

// singleJoiningSlash joins two URL paths with exactly one slash.
func singleJoiningSlash(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}
