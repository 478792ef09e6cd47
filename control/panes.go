// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"container/list"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// block is one unit of queued output. A data block (size > 0) counts
// bytes of one pane's stream still to be written; it sits in that
// pane's blocks and in the State's allBlocks. A literal block (size 0)
// is a complete line and sits only in allBlocks.
type block struct {
	size    int
	line    string
	created time.Time

	// all is this block's element in State.allBlocks.
	all *list.Element
}

func (b *block) literal() bool {
	return b.size == 0
}

type paneFlags uint8

const (
	paneOff paneFlags = 1 << iota
	panePaused
)

// controlPane is one client's view of one pane.
type controlPane struct {
	id   uint32
	pane Pane

	// offset is how far the client has written; queued is how far it
	// has wrapped output in blocks. offset <= queued.
	offset Offset
	queued Offset
	flags  paneFlags

	blocks []*block

	// pending is this pane's element in State.pending, or nil.
	pending *list.Element
}

// addPane returns the tracking entry for pane, creating it at the
// pane's consumed offset if this is the first reference.
func (state *State) addPane(pane Pane) *controlPane {
	if existing, ok := state.panes[pane.ID()]; ok {
		existing.pane = pane
		return existing
	}
	start := pane.Consumed()
	created := &controlPane{
		id:     pane.ID(),
		pane:   pane,
		offset: start,
		queued: start,
	}
	state.panes[created.id] = created
	return created
}

// discardPane frees a pane's queued blocks without writing them.
func (state *State) discardPane(pane *controlPane) {
	for _, queued := range pane.blocks {
		state.removeBlock(queued)
	}
	clear(pane.blocks)
	pane.blocks = pane.blocks[:0]
}

// removeBlock unlinks b from allBlocks.
func (state *State) removeBlock(b *block) {
	if b.all != nil {
		state.allBlocks.Remove(b.all)
		b.all = nil
	}
}

// resync moves both offsets to the pane's live position, skipping
// anything produced in between.
func (pane *controlPane) resync() {
	live := pane.pane.Offset()
	pane.offset = live
	pane.queued = live
	pane.pane.Consume(live)
}

// SetPaneOff stops sending output for pane until SetPaneOn.
func (state *State) SetPaneOff(pane Pane) {
	state.addPane(pane).flags |= paneOff
}

// SetPaneOn resumes output for a pane turned off with SetPaneOff,
// starting from its live position.
func (state *State) SetPaneOn(pane Pane) {
	tracked, ok := state.panes[pane.ID()]
	if !ok || tracked.flags&paneOff == 0 {
		return
	}
	tracked.flags &^= paneOff
	tracked.pane = pane
	tracked.resync()
}

// PausePane discards the pane's queued output and stops queueing more
// until ContinuePane. The client is told with %pause.
func (state *State) PausePane(pane Pane) {
	tracked := state.addPane(pane)
	if tracked.flags&panePaused != 0 {
		return
	}
	state.pause(tracked)
}

func (state *State) pause(pane *controlPane) {
	pane.flags |= panePaused
	state.discardPane(pane)
	state.Writef("%%pause %%%d", pane.id)
}

// ContinuePane resumes a paused pane from its live position. The
// client is told with %continue.
func (state *State) ContinuePane(pane Pane) {
	tracked, ok := state.panes[pane.ID()]
	if !ok || tracked.flags&panePaused == 0 {
		return
	}
	tracked.flags &^= panePaused
	tracked.pane = pane
	tracked.resync()
	state.Writef("%%continue %%%d", tracked.id)
}

// PaneState reports whether the client has turned pane off or paused
// it.
func (state *State) PaneState(id uint32) (off, paused bool) {
	tracked, ok := state.panes[id]
	if !ok {
		return false, false
	}
	return tracked.flags&paneOff != 0, tracked.flags&panePaused != 0
}

// ResetOffsets forgets every pane and empties the pending list. Panes
// are re-added at their live offsets on their next output.
func (state *State) ResetOffsets() {
	for _, pane := range state.panes {
		state.discardPane(pane)
	}
	clear(state.panes)
	state.pending.Init()
}

// PaneAction is a pane flow-control request from refresh-client -A.
type PaneAction int

const (
	PaneOn PaneAction = iota
	PaneOff
	PanePause
	PaneContinue
)

// ParsePaneAction parses "%<id>:on|off|pause|continue".
func ParsePaneAction(value string) (uint32, PaneAction, error) {
	target, action, found := strings.Cut(value, ":")
	if !found || !strings.HasPrefix(target, "%") {
		return 0, 0, fmt.Errorf("pane action %q: want %%<pane>:on|off|pause|continue", value)
	}
	id, err := strconv.ParseUint(target[1:], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("pane action %q: bad pane id: %w", value, err)
	}
	switch action {
	case "on":
		return uint32(id), PaneOn, nil
	case "off":
		return uint32(id), PaneOff, nil
	case "pause":
		return uint32(id), PanePause, nil
	case "continue":
		return uint32(id), PaneContinue, nil
	}
	return 0, 0, fmt.Errorf("pane action %q: unknown action %q", value, action)
}

// ApplyPaneAction performs action on pane.
func (state *State) ApplyPaneAction(pane Pane, action PaneAction) {
	switch action {
	case PaneOn:
		state.SetPaneOn(pane)
	case PaneOff:
		state.SetPaneOff(pane)
	case PanePause:
		state.PausePane(pane)
	case PaneContinue:
		state.ContinuePane(pane)
	}
}
