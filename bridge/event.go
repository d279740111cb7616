// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "fmt"

// EventType discriminates the event variants a turn can produce.
type EventType int

const (
	// EventText is a block of assistant prose, rendered verbatim.
	EventText EventType = iota

	// EventToolInvocation announces a tool call before it runs.
	EventToolInvocation

	// EventToolResult carries the output of a completed tool call.
	EventToolResult

	// EventError reports a failed turn.
	EventError
)

// Event is one unit of turn output. Exactly one payload field is
// meaningful per type; Render produces the wire form.
type Event struct {
	Type EventType

	// Text is the content for EventText, EventToolResult, and
	// EventError.
	Text string

	// ToolName and ToolDetail describe an EventToolInvocation.
	// ToolDetail is a short human-readable summary of the input (a
	// command line, a file path) and may be empty.
	ToolName   string
	ToolDetail string
}

// TextEvent creates a prose event.
func TextEvent(text string) Event {
	return Event{Type: EventText, Text: text}
}

// ToolInvocationEvent creates a tool-call announcement.
func ToolInvocationEvent(name, detail string) Event {
	return Event{Type: EventToolInvocation, ToolName: name, ToolDetail: detail}
}

// ToolResultEvent creates a tool-output event.
func ToolResultEvent(output string) Event {
	return Event{Type: EventToolResult, Text: output}
}

// ErrorEvent creates a turn-failure event.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Text: err.Error()}
}

// Render returns the event's wire form. Text passes through unchanged,
// embedded newlines included; tool invocations render as "[Name] detail";
// errors as "[error] message".
func (e Event) Render() string {
	switch e.Type {
	case EventToolInvocation:
		if e.ToolDetail == "" {
			return fmt.Sprintf("[%s]", e.ToolName)
		}
		return fmt.Sprintf("[%s] %s", e.ToolName, e.ToolDetail)
	case EventError:
		return fmt.Sprintf("[error] %s", e.Text)
	default:
		return e.Text
	}
}
