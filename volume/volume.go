// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package volume abstracts the shared artifact volume the sandbox and
// the syncer both mount. Writers commit files into the volume; readers
// must call Refresh before scanning, because the mount does not push
// other writers' commits — visibility is strictly pull-based.
package volume

import (
	"context"
	"time"
)

// Entry describes one file found by Glob.
type Entry struct {
	// Name is the path relative to the volume root.
	Name string

	// ModTime is the file's last modification time as seen after the
	// most recent Refresh.
	ModTime time.Time

	// Size in bytes.
	Size int64
}

// Volume is a pull-consistent view of the shared artifact store.
type Volume interface {
	// Refresh makes commits from other writers visible. Must be
	// called before every scan.
	Refresh(ctx context.Context) error

	// ReadFile returns the contents of the named file, relative to
	// the volume root.
	ReadFile(name string) ([]byte, error)

	// Glob returns entries matching the pattern, relative to the
	// volume root.
	Glob(pattern string) ([]Entry, error)
}
