// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds sensitive values (API keys, upload tokens) in
// memory that the Go runtime never manages.
//
// Buffer allocates its backing store with mmap(MAP_ANONYMOUS), locks it
// into RAM with mlock so it cannot reach swap, and marks it
// MADV_DONTDUMP so it is excluded from core dumps. Close zeroes the
// region before unmapping it. Because the memory lives outside the Go
// heap the garbage collector cannot copy or relocate it, which is the
// only way to guarantee the secret does not linger after use.
package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer is a fixed-size region of protected memory. It must not be
// copied. Accessing the contents after Close panics.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	closed bool
}

// New allocates a protected buffer of the given size.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: size must be positive, got %d", size)
	}

	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}

	return &Buffer{region: region}, nil
}

// NewFromBytes copies source into a new protected buffer and zeroes the
// source slice, so the caller's copy no longer holds the secret.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: source is empty")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.region, source)
	Zero(source)
	return buffer, nil
}

// Bytes returns the protected contents. The slice aliases the mmap
// region; do not retain it past the buffer's lifetime.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.region
}

// String returns the contents as a string. The string is a heap copy —
// use only at API boundaries that require one (HTTP header values).
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Len returns the buffer length without exposing the contents.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	return len(b.region)
}

// Close zeroes, unlocks, and unmaps the region. Safe to call twice.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	Zero(b.region)
	unix.Munlock(b.region)
	err := unix.Munmap(b.region)
	b.region = nil
	b.closed = true
	if err != nil {
		return fmt.Errorf("secret: munmap: %w", err)
	}
	return nil
}

// Zero overwrites a byte slice in place. Used to scrub transient copies
// of secret material (file reads, decoded payloads) after the data has
// moved into protected memory.
func Zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}

// ReadFromPath reads a secret from a file, or from stdin when path is
// "-". Surrounding whitespace is trimmed (credential files commonly end
// with a newline) and the transient read buffer is zeroed.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("secret: reading stdin: %w", err)
			}
			return nil, fmt.Errorf("secret: stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret: %s is empty", path)
	}

	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	return buffer, err
}
