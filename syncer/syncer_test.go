// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/airlock-foundation/airlock/lib/clock"
	"github.com/airlock-foundation/airlock/volume"
)

// fakeVolume models the pull-based visibility of the real mount:
// commits land in pending and become readable only after Refresh.
type fakeVolume struct {
	mu           sync.Mutex
	pending      map[string]fakeFile
	visible      map[string]fakeFile
	refreshCount int
	refreshErr   error
}

type fakeFile struct {
	data    []byte
	modTime time.Time
}

func newFakeVolume() *fakeVolume {
	return &fakeVolume{
		pending: make(map[string]fakeFile),
		visible: make(map[string]fakeFile),
	}
}

func (v *fakeVolume) commit(name string, data []byte, modTime time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending[name] = fakeFile{data: data, modTime: modTime}
}

func (v *fakeVolume) Refresh(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refreshCount++
	if v.refreshErr != nil {
		return v.refreshErr
	}
	for name, file := range v.pending {
		v.visible[name] = file
	}
	return nil
}

func (v *fakeVolume) ReadFile(name string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	file, ok := v.visible[name]
	if !ok {
		return nil, fmt.Errorf("file %s not found", name)
	}
	return file.data, nil
}

func (v *fakeVolume) Glob(pattern string) ([]volume.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var entries []volume.Entry
	for name, file := range v.visible {
		if matched, _ := path.Match(pattern, name); matched {
			entries = append(entries, volume.Entry{
				Name:    name,
				ModTime: file.modTime,
				Size:    int64(len(file.data)),
			})
		}
	}
	return entries, nil
}

type upload struct {
	spaceID string
	name    string
	data    string
	modTime time.Time
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	failing map[string]bool
}

func (u *fakeUploader) Upload(ctx context.Context, spaceID, name string, data []byte, modTime time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failing[name] {
		return fmt.Errorf("dashboard rejected %s", name)
	}
	u.uploads = append(u.uploads, upload{spaceID: spaceID, name: name, data: string(data), modTime: modTime})
	return nil
}

func (u *fakeUploader) snapshot() []upload {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]upload(nil), u.uploads...)
}

var _ volume.Volume = (*fakeVolume)(nil)

func TestSyncUploadsNewArtifactToDiscoveredSpace(t *testing.T) {
	vol := newFakeVolume()
	uploader := &fakeUploader{}
	syncer := &Syncer{Volume: vol, Uploader: uploader}
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	vol.commit("space_id", []byte("teamA/dash\n"), base)
	vol.commit("training.db", []byte("records-v1"), base)

	syncer.Sync(context.Background())

	uploads := uploader.snapshot()
	if len(uploads) != 1 {
		t.Fatalf("got %d uploads, want 1", len(uploads))
	}
	if uploads[0].spaceID != "teamA/dash" {
		t.Errorf("space = %q, want teamA/dash", uploads[0].spaceID)
	}
	if uploads[0].name != "training" {
		t.Errorf("name = %q, want training (extension stripped)", uploads[0].name)
	}
	if uploads[0].data != "records-v1" {
		t.Errorf("data = %q", uploads[0].data)
	}
}

func TestSyncIsIdempotentUntilMtimeAdvances(t *testing.T) {
	vol := newFakeVolume()
	uploader := &fakeUploader{}
	syncer := &Syncer{Volume: vol, Uploader: uploader}
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	vol.commit("space_id", []byte("teamA/dash"), base)
	vol.commit("training.db", []byte("records-v1"), base)

	syncer.Sync(ctx)
	syncer.Sync(ctx)
	syncer.Sync(ctx)
	if got := len(uploader.snapshot()); got != 1 {
		t.Fatalf("unchanged artifact uploaded %d times, want 1", got)
	}

	// New commit with a newer mtime is picked up exactly once.
	vol.commit("training.db", []byte("records-v2"), base.Add(time.Minute))
	syncer.Sync(ctx)
	syncer.Sync(ctx)

	uploads := uploader.snapshot()
	if len(uploads) != 2 {
		t.Fatalf("got %d uploads, want 2", len(uploads))
	}
	if uploads[1].data != "records-v2" {
		t.Errorf("second upload data = %q, want records-v2", uploads[1].data)
	}
}

func TestSyncSkipsCycleWithoutSpaceID(t *testing.T) {
	vol := newFakeVolume()
	uploader := &fakeUploader{}
	syncer := &Syncer{Volume: vol, Uploader: uploader}

	vol.commit("training.db", []byte("records"), time.Now())
	syncer.Sync(context.Background())

	if got := len(uploader.snapshot()); got != 0 {
		t.Errorf("got %d uploads before space_id exists, want 0", got)
	}

	// Once the destination appears, the artifact ships.
	vol.commit("space_id", []byte("teamA/dash"), time.Now())
	syncer.Sync(context.Background())
	if got := len(uploader.snapshot()); got != 1 {
		t.Errorf("got %d uploads after space_id appeared, want 1", got)
	}
}

func TestLateDestinationUploadsPreexistingArtifacts(t *testing.T) {
	vol := newFakeVolume()
	uploader := &fakeUploader{}
	syncer := &Syncer{Volume: vol, Uploader: uploader}
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// Two run logs exist and get modified before anyone knows where
	// they should go.
	vol.commit("training.db", []byte("training-records"), base)
	vol.commit("eval.db", []byte("eval-records"), base.Add(time.Second))

	syncer.Sync(ctx)
	syncer.Sync(ctx)
	if got := len(uploader.snapshot()); got != 0 {
		t.Fatalf("got %d uploads before the destination exists, want 0", got)
	}

	vol.commit("space_id", []byte("teamA/dash"), base.Add(2*time.Second))
	syncer.Sync(ctx)

	uploads := uploader.snapshot()
	if len(uploads) != 2 {
		t.Fatalf("got %d uploads on the cycle after discovery, want 2", len(uploads))
	}
	seen := map[string]int{}
	for _, u := range uploads {
		if u.spaceID != "teamA/dash" {
			t.Errorf("upload space = %q, want teamA/dash", u.spaceID)
		}
		seen[u.name]++
	}
	if seen["training"] != 1 || seen["eval"] != 1 {
		t.Errorf("upload counts = %v, want each artifact exactly once", seen)
	}

	// And nothing re-ships on the following cycle.
	syncer.Sync(ctx)
	if got := len(uploader.snapshot()); got != 2 {
		t.Errorf("got %d uploads after an idle cycle, want 2", got)
	}
}

func TestSyncIgnoresNonArtifactFiles(t *testing.T) {
	vol := newFakeVolume()
	uploader := &fakeUploader{}
	syncer := &Syncer{Volume: vol, Uploader: uploader}
	now := time.Now()

	vol.commit("space_id", []byte("teamA/dash"), now)
	vol.commit("training.db", []byte("records"), now)
	vol.commit("training.db.lock", []byte(""), now)
	vol.commit("notes.txt", []byte("scratch"), now)

	syncer.Sync(context.Background())

	uploads := uploader.snapshot()
	if len(uploads) != 1 || uploads[0].name != "training" {
		t.Errorf("uploads = %+v, want just training", uploads)
	}
}

func TestFailedUploadRetriedNextCycle(t *testing.T) {
	vol := newFakeVolume()
	uploader := &fakeUploader{failing: map[string]bool{"training": true}}
	syncer := &Syncer{Volume: vol, Uploader: uploader}
	now := time.Now()
	ctx := context.Background()

	vol.commit("space_id", []byte("teamA/dash"), now)
	vol.commit("training.db", []byte("records"), now)
	vol.commit("eval.db", []byte("eval-records"), now)

	// First cycle: training fails, eval still ships.
	syncer.Sync(ctx)
	uploads := uploader.snapshot()
	if len(uploads) != 1 || uploads[0].name != "eval" {
		t.Fatalf("uploads after failing cycle = %+v, want just eval", uploads)
	}

	// Dashboard recovers: the unchanged-but-never-uploaded artifact is
	// retried, the already-shipped one is not.
	uploader.mu.Lock()
	uploader.failing = nil
	uploader.mu.Unlock()
	syncer.Sync(ctx)

	uploads = uploader.snapshot()
	if len(uploads) != 2 {
		t.Fatalf("got %d uploads after recovery, want 2", len(uploads))
	}
	if uploads[1].name != "training" {
		t.Errorf("retried upload = %q, want training", uploads[1].name)
	}
}

func TestCommitsInvisibleUntilRefresh(t *testing.T) {
	vol := newFakeVolume()
	vol.commit("space_id", []byte("teamA/dash"), time.Now())
	if _, err := vol.ReadFile("space_id"); err == nil {
		t.Fatal("fake volume exposed a commit before Refresh; test premise broken")
	}

	uploader := &fakeUploader{}
	syncer := &Syncer{Volume: vol, Uploader: uploader}
	vol.commit("training.db", []byte("records"), time.Now())

	syncer.Sync(context.Background())
	if vol.refreshCount != 1 {
		t.Errorf("refresh count = %d, want 1 (refresh must precede every scan)", vol.refreshCount)
	}
	if got := len(uploader.snapshot()); got != 1 {
		t.Errorf("got %d uploads, want 1", got)
	}
}

func TestRunCyclesOnFakeClock(t *testing.T) {
	vol := newFakeVolume()
	uploader := &fakeUploader{}
	fakeClock := clock.Fake(time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))
	syncer := &Syncer{
		Volume:   vol,
		Uploader: uploader,
		Interval: 30 * time.Second,
		Clock:    fakeClock,
	}

	vol.commit("space_id", []byte("teamA/dash"), fakeClock.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- syncer.Run(ctx) }()

	// The ticker registers after the immediate first cycle.
	fakeClock.WaitForTimers(1)

	vol.commit("training.db", []byte("records-v1"), fakeClock.Now())
	fakeClock.Advance(30 * time.Second)

	waitFor(t, func() bool { return len(uploader.snapshot()) == 1 })

	vol.commit("training.db", []byte("records-v2"), fakeClock.Now().Add(time.Second))
	fakeClock.Advance(30 * time.Second)

	waitFor(t, func() bool { return len(uploader.snapshot()) == 2 })

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	for _, u := range uploader.snapshot() {
		if u.spaceID != "teamA/dash" {
			t.Errorf("upload space = %q, want teamA/dash", u.spaceID)
		}
		if strings.HasSuffix(u.name, ".db") {
			t.Errorf("upload name %q retains extension", u.name)
		}
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}
