// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDirRefreshAndRead(t *testing.T) {
	root := t.TempDir()
	dir := &Dir{Root: root}
	ctx := context.Background()

	if err := dir.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "space_id"), []byte("teamA/dash\n"), 0o644); err != nil {
		t.Fatalf("writing space_id: %v", err)
	}
	data, err := dir.ReadFile("space_id")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "teamA/dash\n" {
		t.Errorf("contents = %q", data)
	}
}

func TestDirRefreshFailsWhenRootVanishes(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mount")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dir := &Dir{Root: root}

	if err := dir.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh on existing root: %v", err)
	}
	if err := os.Remove(root); err != nil {
		t.Fatalf("removing root: %v", err)
	}
	if err := dir.Refresh(context.Background()); err == nil {
		t.Error("Refresh succeeded after the root vanished")
	}
}

func TestDirGlobFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"loss.db", "acc.db", "acc.db.lock", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(root, "dir.db"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dir := &Dir{Root: root}

	entries, err := dir.Glob("*.db")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].Name != "acc.db" || entries[1].Name != "loss.db" {
		t.Errorf("entries = %q, %q; want acc.db, loss.db", entries[0].Name, entries[1].Name)
	}
	if entries[0].ModTime.IsZero() {
		t.Error("entry mtime is zero")
	}
}
