// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncer polls the shared artifact volume and ships changed
// run logs to the dashboard. It is the host-side half of the telemetry
// pipeline: the sandbox writes, the syncer reads and uploads.
//
// The upload cursor is in memory only. After a restart every artifact
// is uploaded once more; the dashboard's overwrite semantics make that
// a no-op, so at-least-once is the contract.
package syncer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/airlock-foundation/airlock/lib/clock"
	"github.com/airlock-foundation/airlock/telemetry"
	"github.com/airlock-foundation/airlock/volume"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 30 * time.Second

const artifactSuffix = ".db"

// Uploader ships one artifact to its destination. Implemented by
// dashboard.Client.
type Uploader interface {
	Upload(ctx context.Context, spaceID, name string, data []byte, modTime time.Time) error
}

// Syncer polls a volume and uploads run logs whose mtime advanced
// since their last successful upload.
type Syncer struct {
	// Volume is the shared artifact volume.
	Volume volume.Volume

	// Uploader receives changed artifacts.
	Uploader Uploader

	// Interval between poll cycles. Defaults to DefaultInterval.
	Interval time.Duration

	// Clock drives the poll loop. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// uploaded maps volume entry name to the mtime of the last
	// successful upload. Touched only by the poll goroutine.
	uploaded map[string]time.Time
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Syncer) clock() clock.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return clock.Real()
}

// Run polls until ctx is cancelled. One cycle runs immediately, then
// one per interval. Cycle failures are logged and retried next tick;
// Run only returns the context's error.
func (s *Syncer) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.Sync(ctx)

	ticker := s.clock().NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sync(ctx)
		}
	}
}

// Sync runs one poll cycle: refresh the volume, discover the
// destination, upload every run log whose mtime moved past its cursor.
// Each failure affects only its own artifact; the cursor advances only
// on successful upload so the next cycle retries.
func (s *Syncer) Sync(ctx context.Context) {
	if err := s.Volume.Refresh(ctx); err != nil {
		s.logger().Warn("volume refresh failed", "error", err)
		return
	}

	rawSpaceID, err := s.Volume.ReadFile(telemetry.SpaceIDFile)
	if err != nil {
		// Not an error: the run inside the sandbox has not finished
		// setup yet.
		s.logger().Debug("no destination yet", "error", err)
		return
	}
	spaceID := strings.TrimSpace(string(rawSpaceID))
	if spaceID == "" {
		s.logger().Warn("space_id file is empty, skipping cycle")
		return
	}

	entries, err := s.Volume.Glob("*" + artifactSuffix)
	if err != nil {
		s.logger().Warn("volume scan failed", "error", err)
		return
	}

	if s.uploaded == nil {
		s.uploaded = make(map[string]time.Time)
	}

	for _, entry := range entries {
		if !entry.ModTime.After(s.uploaded[entry.Name]) {
			continue
		}
		if err := s.syncEntry(ctx, spaceID, entry); err != nil {
			s.logger().Warn("artifact upload failed",
				"artifact", entry.Name,
				"space", spaceID,
				"error", err,
			)
			continue
		}
		s.uploaded[entry.Name] = entry.ModTime
		s.logger().Info("artifact synced",
			"artifact", entry.Name,
			"space", spaceID,
			"mtime", entry.ModTime,
			"bytes", entry.Size,
		)
	}
}

func (s *Syncer) syncEntry(ctx context.Context, spaceID string, entry volume.Entry) error {
	data, err := s.Volume.ReadFile(entry.Name)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(entry.Name, artifactSuffix)
	return s.Uploader.Upload(ctx, spaceID, name, data, entry.ModTime)
}
