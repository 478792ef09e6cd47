// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import "time"

// Offset is a position in a pane's output stream: the count of bytes
// the pane has produced before it. Offsets only grow.
type Offset uint64

// Pane is one output producer as seen by one control client. The
// client's State remembers how far it has read and queued; the Pane
// supplies the bytes and learns how far this client has consumed so it
// can release history nobody still needs.
type Pane interface {
	// ID is the pane's unique id, written as %<id> on the wire.
	ID() uint32

	// Alive reports whether the pane's data sink still exists. Once it
	// returns false the pane's queued output is discarded unsent.
	//
	// A pane whose process has exited may still report true: its
	// history outlives the process, so output already produced is
	// delivered. Only a pane the client can no longer read from (for
	// pane.Consumer, one that has been detached) reports false.
	Alive() bool

	// Offset returns the live position: the total bytes produced so far.
	Offset() Offset

	// NewData returns at most limit bytes produced since from. If the
	// pane no longer holds all of them, start is the oldest offset it
	// does hold and the bytes between from and start are lost.
	NewData(from Offset, limit int) (data []byte, start Offset)

	// Consume records that this client will never ask for bytes before
	// to again.
	Consume(to Offset)

	// Consumed returns the offset last passed to Consume, or the live
	// offset at the time the client attached. A client that starts
	// tracking the pane starts here.
	Consumed() Offset
}

// Client is the connection a State writes for.
type Client interface {
	// Name identifies the client in logs.
	Name() string

	// Flags returns the client's current control flags.
	Flags() ClientFlags

	// PauseAge is how old a pane's oldest queued block may get before
	// the pane is paused, for clients with FlagPauseAfter.
	PauseAge() time.Duration

	// Exit asks the surrounding server to disconnect the client with
	// the given message once its remaining output is written.
	Exit(message string)
}

// Output is the client's outgoing byte stream. Writes never block: they
// append to an in-memory buffer that the owner drains when the socket
// is writable. Len reports how many bytes are still buffered.
type Output interface {
	Len() int
	Write(p []byte)

	// EnableWrite asks for WriteReady to be called when the socket can
	// take more data and the buffer has drained to BufferLow.
	EnableWrite()

	// DisableWrite stops those calls until the next EnableWrite.
	DisableWrite()
}

// Session is the view of the attached session that subscriptions and
// pane lookups need.
type Session interface {
	// ID is the session id, written as $<id> on the wire.
	ID() uint32

	// Winlinks returns the session's windows in index order. A window
	// linked at several indexes appears once per index.
	Winlinks() []Winlink

	// Expand evaluates a format for target.
	Expand(format string, target Target) string
}

// Winlink is a window linked into a session at an index.
type Winlink struct {
	Index  int
	Window Window
}

// Window is a window and its panes.
type Window struct {
	ID    uint32
	Panes []WindowPane
}

// WindowPane is one pane of a window. Dead panes are skipped by pane
// subscriptions.
type WindowPane struct {
	ID   uint32
	Dead bool
}

// Target selects what a format is evaluated against. Winlink and Pane
// are nil for session-scoped formats.
type Target struct {
	SessionID uint32
	Winlink   *Winlink
	Pane      *WindowPane
}

// findPane returns every winlink whose window holds pane id, and the
// pane itself. A pane belongs to one window, which may be linked more
// than once.
func findPane(session Session, id uint32) ([]Winlink, *WindowPane) {
	var links []Winlink
	var found *WindowPane
	for _, winlink := range session.Winlinks() {
		for i := range winlink.Window.Panes {
			if winlink.Window.Panes[i].ID == id {
				links = append(links, winlink)
				found = &winlink.Window.Panes[i]
			}
		}
	}
	return links, found
}

// findWindow returns every winlink of window id in session.
func findWindow(session Session, id uint32) []Winlink {
	var links []Winlink
	for _, winlink := range session.Winlinks() {
		if winlink.Window.ID == id {
			links = append(links, winlink)
		}
	}
	return links
}
