// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// EndTurnMarker is the line written after every turn's events. The
// controller reads until this marker to frame a turn's output.
const EndTurnMarker = "---END_TURN---"

// Client executes one conversational turn. Implementations call emit
// for each event in order; emit must not be called after Turn returns.
// A returned error marks the turn as failed but does not stop the
// bridge.
type Client interface {
	Turn(ctx context.Context, input string, emit func(Event)) error
}

// Bridge connects a line-oriented input stream to a Client and renders
// the client's events to the output stream, one line each, with a
// terminal marker per turn.
type Bridge struct {
	// Input supplies one turn per line. Typically os.Stdin.
	Input io.Reader

	// Output receives rendered event lines and markers. Typically
	// os.Stdout.
	Output io.Writer

	// Client executes turns.
	Client Client

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

func (b *Bridge) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Run processes turns until the input reaches EOF or ctx is cancelled.
// EOF is a clean shutdown and returns nil. Each consumed input line
// produces exactly one terminal marker, error turns included.
func (b *Bridge) Run(ctx context.Context) error {
	if b.Input == nil || b.Output == nil {
		return fmt.Errorf("bridge: Input and Output are required")
	}
	if b.Client == nil {
		return fmt.Errorf("bridge: Client is required")
	}

	// A dedicated reader goroutine so a blocking Read on Input cannot
	// prevent the select below from observing ctx cancellation.
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(b.Input)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	writer := bufio.NewWriter(b.Output)
	var writeMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
				default:
				}
				b.logger().Info("input closed, shutting down")
				return nil
			}
			b.runTurn(ctx, line, writer, &writeMu)
		}
	}
}

// runTurn executes one turn and guarantees the terminal marker is
// written even when the client fails.
func (b *Bridge) runTurn(ctx context.Context, input string, writer *bufio.Writer, writeMu *sync.Mutex) {
	startTime := time.Now()
	eventCount := 0

	emit := func(event Event) {
		eventCount++
		b.writeLine(writer, writeMu, event.Render())
	}

	err := b.Client.Turn(ctx, input, emit)
	if err != nil {
		b.logger().Warn("turn failed", "error", err, "duration", time.Since(startTime))
		b.writeLine(writer, writeMu, ErrorEvent(err).Render())
	} else {
		b.logger().Info("turn complete",
			"events", eventCount,
			"duration", time.Since(startTime),
		)
	}

	b.writeLine(writer, writeMu, EndTurnMarker)
}

// writeLine writes one line and flushes so the controller sees events
// as they happen, not when the turn ends. Write errors are logged and
// otherwise ignored: the turn still runs to completion so the client's
// conversation state stays consistent.
func (b *Bridge) writeLine(writer *bufio.Writer, writeMu *sync.Mutex, line string) {
	writeMu.Lock()
	defer writeMu.Unlock()
	if _, err := writer.WriteString(line + "\n"); err != nil {
		b.logger().Error("writing output line", "error", err)
		return
	}
	if err := writer.Flush(); err != nil {
		b.logger().Error("flushing output", "error", err)
	}
}
