// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"
	"time"
)

// Writef formats a line and writes it with Write.
func (state *State) Writef(format string, args ...any) {
	state.Write(fmt.Sprintf(format, args...))
}

// Write sends one line (without its trailing newline). If no output is
// queued the line goes straight to the output; otherwise it is queued
// behind everything already waiting, so the client sees it only after
// all pane output produced before it.
func (state *State) Write(line string) {
	if state.allBlocks.Len() == 0 {
		state.logger.Debug("writing line", "line", line)
		state.writeLine(line)
		state.output.EnableWrite()
		return
	}

	literal := &block{line: line, created: state.clock.Now()}
	literal.all = state.allBlocks.PushBack(literal)
	state.logger.Debug("storing line", "line", line)
	state.output.EnableWrite()
}

func (state *State) writeLine(line string) {
	buffer := make([]byte, 0, len(line)+1)
	buffer = append(buffer, line...)
	buffer = append(buffer, '\n')
	state.output.Write(buffer)
}

// inSession reports whether pane id belongs to the client's session.
func (state *State) inSession(id uint32) bool {
	if state.session == nil {
		return true
	}
	links, _ := findPane(state.session, id)
	return len(links) > 0
}

// checkAge applies the admission policy to the pane's oldest block.
// Returns true if it paused the pane or dropped the client, in which
// case the caller must stop working on this pane.
func (state *State) checkAge(pane *controlPane) bool {
	if len(pane.blocks) == 0 {
		return false
	}
	age := state.clock.Since(pane.blocks[0].created)
	decision := admissionFor(state.client).Decide(age)
	if decision == Keep {
		return false
	}
	state.logger.Debug("pane behind", "pane", pane.id, "age", age, "decision", decision)

	switch decision {
	case Pause:
		state.pause(pane)
	case Disconnect:
		state.logger.Warn("client too far behind", "pane", pane.id, "age", age)
		state.client.Exit("too far behind")
		state.Discard()
	}
	return true
}

// WriteOutput is called when pane has produced new bytes. The new span
// is queued as a block behind everything already waiting and the pane
// joins the pending list. Clients that ignore output, and panes that
// are off or paused, retire the bytes without queueing them.
func (state *State) WriteOutput(pane Pane) {
	if state.discarded || !state.inSession(pane.ID()) {
		return
	}

	var tracked *controlPane
	if state.client.Flags()&ignoreFlags != 0 {
		existing, ok := state.panes[pane.ID()]
		if !ok {
			pane.Consume(pane.Offset())
			return
		}
		tracked = existing
		tracked.pane = pane
	} else {
		tracked = state.addPane(pane)
		if tracked.flags&(paneOff|panePaused) == 0 {
			state.queueOutput(tracked)
			return
		}
	}

	state.logger.Debug("ignoring pane", "pane", tracked.id)
	live := pane.Offset()
	tracked.offset = live
	tracked.queued = live
	pane.Consume(live)
}

func (state *State) queueOutput(pane *controlPane) {
	if state.checkAge(pane) {
		return
	}
	live := pane.pane.Offset()
	if live <= pane.queued {
		return
	}
	size := int(live - pane.queued)
	pane.queued = live

	data := &block{size: size, created: state.clock.Now()}
	data.all = state.allBlocks.PushBack(data)
	pane.blocks = append(pane.blocks, data)
	state.logger.Debug("new output block", "pane", pane.id, "size", size)

	if pane.pending == nil {
		state.logger.Debug("pane now pending", "pane", pane.id)
		pane.pending = state.pending.PushBack(pane)
	}
	state.output.EnableWrite()
}

// flushAllBlocks writes literal lines from the head of allBlocks. It
// stops at the first data block: a line is released only once no older
// pane output is still waiting.
func (state *State) flushAllBlocks() {
	for element := state.allBlocks.Front(); element != nil; element = state.allBlocks.Front() {
		head := element.Value.(*block)
		if !head.literal() {
			return
		}
		state.logger.Debug("flushing line", "line", head.line)
		state.writeLine(head.line)
		state.removeBlock(head)
	}
}

// appendData adds size bytes of the pane's output, from its write
// offset, to message. An empty message gets its %output or
// %extended-output prefix first.
func (state *State) appendData(pane *controlPane, age time.Duration, message []byte, size int) []byte {
	data, start := pane.pane.NewData(pane.offset, size)
	if start > pane.offset {
		lost := int(min(Offset(size), start-pane.offset))
		state.logger.Warn("pane output lost before it was sent", "pane", pane.id, "bytes", lost)
		data = data[:min(len(data), size-lost)]
	} else if len(data) < size {
		state.logger.Error("pane returned less data than queued", "pane", pane.id, "have", len(data), "want", size)
	}
	pane.offset += Offset(size)
	pane.pane.Consume(pane.offset)

	if len(data) == 0 {
		return message
	}
	if message == nil {
		if state.client.Flags()&FlagPauseAfter != 0 {
			message = fmt.Appendf(message, "%%extended-output %%%d %d : ", pane.id, age.Milliseconds())
		} else {
			message = fmt.Appendf(message, "%%output %%%d ", pane.id)
		}
	}
	return AppendEscaped(message, data)
}

func (state *State) writeData(message []byte) {
	state.output.Write(append(message, '\n'))
}

// writePending writes up to limit bytes of the pane's queued output.
// Returns whether the pane still has blocks left.
func (state *State) writePending(pane *controlPane, limit int) bool {
	if !pane.pane.Alive() || !state.inSession(pane.id) {
		state.discardPane(pane)
		state.flushAllBlocks()
		return false
	}

	now := state.clock.Now()
	var message []byte
	used := 0
	for used != limit && len(pane.blocks) > 0 {
		if state.checkAge(pane) {
			message = nil
			break
		}

		head := pane.blocks[0]
		age := max(now.Sub(head.created), 0)
		size := min(head.size, limit-used)
		used += size
		state.logger.Debug("output block", "pane", pane.id, "size", head.size, "age", age, "used", used, "limit", limit)

		message = state.appendData(pane, age, message, size)

		head.size -= size
		if head.size != 0 {
			continue
		}
		pane.blocks[0] = nil
		pane.blocks = pane.blocks[1:]
		state.removeBlock(head)

		if front := state.allBlocks.Front(); front != nil && front.Value.(*block).literal() {
			if message != nil {
				state.writeData(message)
				message = nil
			}
			state.flushAllBlocks()
		}
	}
	if message != nil {
		state.writeData(message)
	}
	return len(pane.blocks) > 0
}

// WriteReady is called when the output can take more data. Queued
// lines at the head are flushed, then pending panes are visited in
// round-robin order, each contributing up to an equal budget, until
// the output reaches BufferHigh or nothing is pending. Write
// notification is disabled once the output is empty.
func (state *State) WriteReady() {
	state.flushAllBlocks()

	for state.output.Len() < BufferHigh && state.pending.Len() != 0 {
		space := BufferHigh - state.output.Len()
		limit := Budget(space, state.pending.Len())
		state.logger.Debug("write ready", "space", space, "panes", state.pending.Len(), "limit", limit)

		// Each pane pending at the start of the pass is visited once. A
		// pane with output left moves to the back, so a pass cut short
		// at BufferHigh resumes with the panes it did not reach.
		for visits := state.pending.Len(); visits > 0 && state.output.Len() < BufferHigh; visits-- {
			element := state.pending.Front()
			if element == nil {
				break
			}
			pane := element.Value.(*controlPane)
			if state.writePending(pane, limit) {
				state.pending.MoveToBack(element)
				continue
			}
			state.pending.Remove(element)
			pane.pending = nil
		}
	}
	if state.output.Len() == 0 {
		state.output.DisableWrite()
	}
}
