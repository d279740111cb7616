// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge runs the line-oriented turn protocol between an
// external controller and a conversational agent.
//
// The controller writes one input line per turn. The bridge hands the
// line to a [Client], relays every event the client emits as one output
// line, then writes the terminal marker line. The marker is the
// controller's only framing signal: everything between two markers
// belongs to one turn, and a turn with no events is just a bare marker.
//
// Turns are strictly sequential. A second input line arriving while a
// turn is in flight waits in the reader channel until the current turn
// has emitted its marker. Client errors become an Error event followed
// by the marker; the bridge itself only stops on EOF or context
// cancellation.
package bridge
