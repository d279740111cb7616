// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordRoundTrip(t *testing.T) {
	root := t.TempDir()
	recorder, err := NewRecorder(root, "training")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	base := time.Now().Truncate(time.Second)
	for step := int64(0); step < 3; step++ {
		record := Record{
			Time:  base.Add(time.Duration(step) * time.Second),
			Name:  "loss",
			Value: 1.0 / float64(step+1),
			Step:  step,
		}
		if err := recorder.Record(record); err != nil {
			t.Fatalf("Record step %d: %v", step, err)
		}
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "training.db"))
	if err != nil {
		t.Fatalf("reading run log: %v", err)
	}
	records, err := ReadRecords(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for step, record := range records {
		if record.Step != int64(step) {
			t.Errorf("record %d step = %d", step, record.Step)
		}
		if record.Name != "loss" {
			t.Errorf("record %d name = %q", step, record.Name)
		}
	}
}

func TestReadRecordsToleratesTruncatedTail(t *testing.T) {
	root := t.TempDir()
	recorder, err := NewRecorder(root, "run")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for step := int64(0); step < 2; step++ {
		if err := recorder.Record(Record{Name: "acc", Step: step}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	recorder.Close()

	data, err := os.ReadFile(filepath.Join(root, "run.db"))
	if err != nil {
		t.Fatalf("reading run log: %v", err)
	}

	// Chop mid-record: the complete first record must still decode.
	truncated := data[:len(data)-3]
	records, err := ReadRecords(bytes.NewReader(truncated))
	if err != nil {
		t.Fatalf("ReadRecords on truncated log: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records from truncated log, want 1", len(records))
	}
}

func TestAppendAcrossRecorders(t *testing.T) {
	root := t.TempDir()

	first, err := NewRecorder(root, "run")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	first.Record(Record{Name: "loss", Step: 0})
	first.Close()

	second, err := NewRecorder(root, "run")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	second.Record(Record{Name: "loss", Step: 1})
	second.Close()

	data, _ := os.ReadFile(filepath.Join(root, "run.db"))
	records, err := ReadRecords(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2 (reopen must append, not truncate)", len(records))
	}
}

func TestWriteSpaceIDIsWriteOnce(t *testing.T) {
	root := t.TempDir()

	if err := WriteSpaceID(root, "teamA/dash"); err != nil {
		t.Fatalf("WriteSpaceID: %v", err)
	}
	// A second write must not clobber the destination.
	if err := WriteSpaceID(root, "teamB/other"); err != nil {
		t.Fatalf("second WriteSpaceID: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, SpaceIDFile))
	if err != nil {
		t.Fatalf("reading space_id: %v", err)
	}
	if string(data) != "teamA/dash\n" {
		t.Errorf("space_id = %q, want the first value", data)
	}
}

func TestWriteSpaceIDRejectsEmpty(t *testing.T) {
	if err := WriteSpaceID(t.TempDir(), "  \n"); err == nil {
		t.Error("blank space ID accepted")
	}
}
