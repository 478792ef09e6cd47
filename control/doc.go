// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control schedules pane output to control-mode clients.
//
// Each client has a [State]. Panes report new bytes with
// [State.WriteOutput]; the State wraps each new span in a block and
// queues it behind everything already waiting for that client. When the
// client's [Output] can take more, [State.WriteReady] visits the panes
// with queued blocks in round-robin order and writes each one's share
// as %output lines, escaped so that every line is printable. Status
// lines written with [State.Write] are held in the same global order,
// so a client never sees a notification ahead of pane output produced
// before it.
//
// A client that cannot keep up is handled by [Admission]: with
// pause-after set the lagging pane is paused (%pause) and its queued
// output dropped until the client asks for it to continue; otherwise,
// once a block is [MaximumAge] old, the client is told to exit.
//
// State is single-owner. A [Loop] runs all of a client's State calls
// on one goroutine; a [Sink] is the Output for a client whose bytes go
// to a non-blocking socket or pipe. [Reader] parses the resulting
// stream on the receiving side.
package control
