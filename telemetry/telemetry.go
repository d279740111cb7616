// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry is the in-sandbox side of the artifact pipeline.
// The agent appends metric records to a run log on the shared volume;
// the syncer on the host picks the log up and ships it to the
// dashboard. Records are length-prefixed CBOR so a reader can recover
// every complete record even when the writer is mid-append.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/airlock-foundation/airlock/lib/codec"
)

// SpaceIDFile is the well-known file at the volume root naming the
// dashboard destination for every artifact in the volume.
const SpaceIDFile = "space_id"

// maxRecordSize bounds a single record. A larger length prefix means
// the log is corrupt, not that a record is actually that big.
const maxRecordSize = 1 << 20

// Record is one metric sample.
type Record struct {
	Time  time.Time `cbor:"time"`
	Name  string    `cbor:"name"`
	Value float64   `cbor:"value"`
	Step  int64     `cbor:"step"`
}

// Recorder appends records to a run log (<run>.db) at the volume root.
// Safe for concurrent Record calls.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
}

// NewRecorder opens (creating if needed) the run log for appending.
// The run name becomes the artifact name on the dashboard.
func NewRecorder(volumeRoot, run string) (*Recorder, error) {
	if run == "" {
		return nil, fmt.Errorf("run name is required")
	}
	path := filepath.Join(volumeRoot, run+".db")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	return &Recorder{file: file}, nil
}

// Record appends one sample: a 4-byte big-endian length prefix
// followed by the CBOR-encoded record, written in a single call so
// concurrent appenders never interleave.
func (r *Recorder) Record(record Record) error {
	encoded, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	framed := make([]byte, 4+len(encoded))
	binary.BigEndian.PutUint32(framed, uint32(len(encoded)))
	copy(framed[4:], encoded)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.file.Write(framed); err != nil {
		return fmt.Errorf("appending record: %w", err)
	}
	return nil
}

// Close flushes and closes the run log.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return fmt.Errorf("syncing run log: %w", err)
	}
	return r.file.Close()
}

// WriteSpaceID writes the destination space at the volume root. A
// file that already exists is left untouched: the destination is set
// once per volume and never changes mid-run.
func WriteSpaceID(volumeRoot, spaceID string) error {
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		return fmt.Errorf("space ID is required")
	}
	path := filepath.Join(volumeRoot, SpaceIDFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(spaceID+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing space ID: %w", err)
	}
	return nil
}

// ReadRecords decodes all complete records from a run log. A truncated
// final record (a writer caught mid-append) is not an error; the
// complete prefix is returned.
func ReadRecords(reader io.Reader) ([]Record, error) {
	var records []Record
	var prefix [4]byte
	for {
		if _, err := io.ReadFull(reader, prefix[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return records, nil
			}
			return records, fmt.Errorf("reading record length: %w", err)
		}
		length := binary.BigEndian.Uint32(prefix[:])
		if length > maxRecordSize {
			return records, fmt.Errorf("record length %d exceeds limit", length)
		}
		encoded := make([]byte, length)
		if _, err := io.ReadFull(reader, encoded); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return records, nil
			}
			return records, fmt.Errorf("reading record body: %w", err)
		}
		var record Record
		if err := codec.Unmarshal(encoded, &record); err != nil {
			return records, fmt.Errorf("decoding record: %w", err)
		}
		records = append(records, record)
	}
}
