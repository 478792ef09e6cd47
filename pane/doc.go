// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pane runs commands on PTYs and keeps their recent output for
// control clients.
//
// A [Pane] stores output in a [Ring] addressed by absolute byte offset.
// Each control client reads a pane through its own [Consumer], which
// implements [control.Pane]: the client's control.State asks for the
// bytes after its offset and reports how far it has consumed. When
// every consumer has fallen a full ring behind, the pane stops reading
// from its process until one of them catches up.
//
// [Spawn] starts a command on a fresh PTY and copies its output into a
// Pane.
package pane
