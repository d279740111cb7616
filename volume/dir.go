// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Dir is a Volume backed by a local directory — the mount point of the
// shared volume on the syncer host. Refresh re-stats the mount root:
// network mounts surface staleness there first, and a vanished root
// means the volume was unmounted underneath us.
type Dir struct {
	// Root is the mount point of the volume.
	Root string
}

// Refresh verifies the mount root is still a readable directory.
func (d *Dir) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(d.Root)
	if err != nil {
		return fmt.Errorf("refreshing volume %s: %w", d.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("volume root %s is not a directory", d.Root)
	}
	return nil
}

// ReadFile returns the contents of name, relative to the root.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.Root, name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// Glob returns entries matching pattern relative to the root, sorted
// by name. Entries that disappear between glob and stat are skipped.
func (d *Dir) Glob(pattern string) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(d.Root, pattern))
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", pattern, err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		name, err := filepath.Rel(d.Root, match)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

var _ Volume = (*Dir)(nil)
