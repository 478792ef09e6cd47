// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"strings"
	"testing"
	"time"
)

func TestWriteOutputSinglePane(t *testing.T) {
	t.Parallel()
	client := &testClient{name: "client-1"}
	state, output, _ := newTestState(t, client)
	pane := &testPane{id: 3}

	pane.produce(strings.Repeat("a", 100))
	state.WriteOutput(pane)

	if state.PendingCount() != 1 {
		t.Fatalf("PendingCount after WriteOutput: got %d, want 1", state.PendingCount())
	}
	if state.QueuedBlocks() != 1 {
		t.Fatalf("QueuedBlocks after WriteOutput: got %d, want 1", state.QueuedBlocks())
	}
	if output.Len() != 0 {
		t.Fatalf("output written before WriteReady: %q", output.buffer.String())
	}
	if !output.enabled {
		t.Fatal("write notification not enabled after WriteOutput")
	}

	state.WriteReady()

	requireLines(t, output.take(), "%output %3 "+strings.Repeat("a", 100))
	if state.PendingCount() != 0 {
		t.Errorf("PendingCount after WriteReady: got %d, want 0", state.PendingCount())
	}
	if state.QueuedBlocks() != 0 {
		t.Errorf("QueuedBlocks after WriteReady: got %d, want 0", state.QueuedBlocks())
	}
	if pane.consumed != 100 {
		t.Errorf("pane consumed: got %d, want 100", pane.consumed)
	}
	if !state.AllDone() {
		t.Error("AllDone: got false after draining the output")
	}
}

func TestWriteOutputStartsAtConsumedOffset(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "late"})
	pane := &testPane{id: 1}
	pane.produce("before attach ")
	pane.consumed = pane.Offset()

	pane.produce("after")
	state.WriteOutput(pane)
	state.WriteReady()

	requireLines(t, output.take(), "%output %1 after")
}

func TestWriteIsImmediateWhenNothingQueued(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "idle"})

	state.Write("%sessions-changed")

	requireLines(t, output.take(), "%sessions-changed")
	if state.QueuedBlocks() != 0 {
		t.Errorf("QueuedBlocks: got %d, want 0", state.QueuedBlocks())
	}
}

func TestLiteralLinesKeepOrderWithPaneOutput(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "ordered"})
	pane := &testPane{id: 1}

	pane.produce("one")
	state.WriteOutput(pane)
	state.Write("%sessions-changed")
	pane.produce("two")
	state.WriteOutput(pane)

	if output.Len() != 0 {
		t.Fatalf("line written ahead of queued output: %q", output.buffer.String())
	}
	if state.QueuedBlocks() != 3 {
		t.Fatalf("QueuedBlocks: got %d, want 3", state.QueuedBlocks())
	}

	state.WriteReady()

	requireLines(t, output.take(),
		"%output %1 one",
		"%sessions-changed",
		"%output %1 two",
	)
}

func TestWriteReadyIsFairAcrossPanes(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "fair"})
	first := &testPane{id: 1}
	second := &testPane{id: 2}
	first.produce(strings.Repeat("x", 10000))
	second.produce(strings.Repeat("y", 10000))
	state.WriteOutput(first)
	state.WriteOutput(second)

	state.WriteReady()

	if output.Len() < BufferHigh {
		t.Errorf("output stopped at %d bytes, want at least BufferHigh (%d)", output.Len(), BufferHigh)
	}
	lines := output.take()
	sent := map[string]int{}
	for i, line := range lines {
		want := "%output %1 "
		if i%2 == 1 {
			want = "%output %2 "
		}
		if !strings.HasPrefix(line, want) {
			t.Fatalf("line %d: got prefix %q, want %q", i, line[:min(len(line), 12)], want)
		}
		payload := len(line) - len(want)
		if payload < WriteMinimum {
			t.Errorf("line %d carries %d bytes, below WriteMinimum", i, payload)
		}
		sent[want] += payload
	}
	if state.PendingCount() != 2 {
		t.Errorf("PendingCount: got %d, want 2 (neither pane drained)", state.PendingCount())
	}
	// The round may stop after the first pane, so it can lead by at
	// most one minimum share.
	difference := sent["%output %1 "] - sent["%output %2 "]
	if difference < 0 || difference > WriteMinimum {
		t.Errorf("pane 1 sent %d bytes, pane 2 sent %d", sent["%output %1 "], sent["%output %2 "])
	}
	if Offset(sent["%output %1 "]) != first.consumed {
		t.Errorf("pane 1 consumed %d, sent %d", first.consumed, sent["%output %1 "])
	}
}

func TestWriteReadyDisablesWriteWhenIdle(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "quiet"})
	output.enabled = true

	state.WriteReady()

	if output.enabled {
		t.Error("write notification still enabled with nothing to write")
	}
}

func TestOutputIsEscaped(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "escape"})
	pane := &testPane{id: 1}

	pane.produce("a\nb\\c\x1b")
	state.WriteOutput(pane)
	state.WriteReady()

	requireLines(t, output.take(), `%output %1 a\012b\134c\033`)
}

func TestExtendedOutputCarriesAge(t *testing.T) {
	t.Parallel()
	client := &testClient{name: "extended", flags: FlagPauseAfter, pauseAge: 10 * time.Second}
	state, output, fake := newTestState(t, client)
	pane := &testPane{id: 4}

	pane.produce("hello")
	state.WriteOutput(pane)
	fake.Advance(250 * time.Millisecond)
	state.WriteReady()

	requireLines(t, output.take(), "%extended-output %4 250 : hello")
}

func TestPauseAfterPausesLaggingPane(t *testing.T) {
	t.Parallel()
	client := &testClient{name: "slow", flags: FlagPauseAfter, pauseAge: time.Second}
	state, output, fake := newTestState(t, client)
	pane := &testPane{id: 1}

	pane.produce("hello")
	state.WriteOutput(pane)
	fake.Advance(2 * time.Second)
	state.WriteReady()

	requireLines(t, output.take(), "%pause %1")
	if _, paused := state.PaneState(1); !paused {
		t.Fatal("pane not paused")
	}
	if state.PendingCount() != 0 || state.QueuedBlocks() != 0 {
		t.Fatalf("paused pane still queued: pending=%d blocks=%d", state.PendingCount(), state.QueuedBlocks())
	}
	if len(client.exits) != 0 {
		t.Fatalf("pause-after client told to exit: %q", client.exits)
	}

	// Output produced while paused is retired, not queued.
	pane.produce("more")
	state.WriteOutput(pane)
	if state.QueuedBlocks() != 0 {
		t.Errorf("output queued while paused")
	}
	if pane.consumed != pane.Offset() {
		t.Errorf("paused pane consumed %d, want live offset %d", pane.consumed, pane.Offset())
	}

	state.ContinuePane(pane)
	requireLines(t, output.take(), "%continue %1")

	pane.produce("after")
	state.WriteOutput(pane)
	state.WriteReady()
	requireLines(t, output.take(), "%extended-output %1 0 : after")
}

func TestPausePaneIsIdempotent(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "pauser"})
	pane := &testPane{id: 7}

	state.PausePane(pane)
	state.PausePane(pane)
	state.ContinuePane(pane)
	state.ContinuePane(pane)

	requireLines(t, output.take(), "%pause %7", "%continue %7")
}

func TestClientTooFarBehindIsDisconnected(t *testing.T) {
	t.Parallel()
	client := &testClient{name: "stuck"}
	state, output, fake := newTestState(t, client)
	pane := &testPane{id: 1}

	pane.produce("stale")
	state.WriteOutput(pane)
	fake.Advance(MaximumAge)
	state.WriteReady()

	if len(client.exits) != 1 || client.exits[0] != "too far behind" {
		t.Fatalf("exits: got %q, want [\"too far behind\"]", client.exits)
	}
	if !state.Discarded() {
		t.Error("state not discarded")
	}
	if output.Len() != 0 {
		t.Errorf("output written to a discarded client: %q", output.buffer.String())
	}
	if state.PendingCount() != 0 || state.QueuedBlocks() != 0 {
		t.Errorf("queue not emptied: pending=%d blocks=%d", state.PendingCount(), state.QueuedBlocks())
	}

	pane.produce("more")
	state.WriteOutput(pane)
	if state.PendingCount() != 0 {
		t.Error("output queued after the client was discarded")
	}
}

func TestClientJustUnderMaximumAgeIsKept(t *testing.T) {
	t.Parallel()
	client := &testClient{name: "patient"}
	state, output, fake := newTestState(t, client)
	pane := &testPane{id: 1}

	pane.produce("late")
	state.WriteOutput(pane)
	fake.Advance(MaximumAge - time.Millisecond)
	state.WriteReady()

	requireLines(t, output.take(), "%output %1 late")
	if len(client.exits) != 0 {
		t.Errorf("exits: got %q, want none", client.exits)
	}
}

func TestDeadPaneIsDiscarded(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "dead"})
	pane := &testPane{id: 1}

	pane.produce("never sent")
	state.WriteOutput(pane)
	state.Write("%window-close @1")
	pane.dead = true
	state.WriteReady()

	requireLines(t, output.take(), "%window-close @1")
	if state.PendingCount() != 0 {
		t.Errorf("PendingCount: got %d, want 0", state.PendingCount())
	}
}

func TestPaneOffRetiresOutput(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "off"})
	pane := &testPane{id: 2}

	state.SetPaneOff(pane)
	if off, _ := state.PaneState(2); !off {
		t.Fatal("pane not off")
	}
	pane.produce("hidden")
	state.WriteOutput(pane)
	if state.PendingCount() != 0 {
		t.Fatalf("off pane queued output")
	}
	if pane.consumed != 6 {
		t.Errorf("off pane consumed %d, want 6", pane.consumed)
	}

	state.SetPaneOn(pane)
	pane.produce("shown")
	state.WriteOutput(pane)
	state.WriteReady()

	requireLines(t, output.take(), "%output %2 shown")
}

func TestNoOutputClientQueuesNothing(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "mute", flags: FlagNoOutput})
	pane := &testPane{id: 1}

	pane.produce("ignored")
	state.WriteOutput(pane)
	state.WriteReady()

	if output.Len() != 0 || state.PendingCount() != 0 {
		t.Errorf("no-output client got output: %q", output.buffer.String())
	}
}

func TestPaneOutsideSessionIsIgnored(t *testing.T) {
	t.Parallel()
	session := &testSession{
		id: 1,
		winlinks: []Winlink{
			{Index: 0, Window: Window{ID: 1, Panes: []WindowPane{{ID: 1}}}},
		},
	}
	state, _, _ := newTestState(t, &testClient{name: "scoped"}, WithSession(session))

	outside := &testPane{id: 9}
	outside.produce("elsewhere")
	state.WriteOutput(outside)
	inside := &testPane{id: 1}
	inside.produce("here")
	state.WriteOutput(inside)

	if state.PendingCount() != 1 {
		t.Errorf("PendingCount: got %d, want 1", state.PendingCount())
	}
}

func TestLostOutputIsSkipped(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "lossy"})
	pane := &testPane{id: 1}

	pane.produce("abcdef")
	state.WriteOutput(pane)
	// The pane drops its first three bytes before they are written.
	pane.data = pane.data[3:]
	pane.base = 3
	state.WriteReady()

	requireLines(t, output.take(), "%output %1 def")
	if pane.consumed != 6 {
		t.Errorf("consumed: got %d, want 6", pane.consumed)
	}
}

func TestResetOffsetsRequeuesUnsentOutput(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "reset"})
	pane := &testPane{id: 1}

	pane.produce("abc")
	state.WriteOutput(pane)
	state.ResetOffsets()
	if state.PendingCount() != 0 || state.QueuedBlocks() != 0 {
		t.Fatalf("after reset: pending=%d blocks=%d", state.PendingCount(), state.QueuedBlocks())
	}

	state.WriteOutput(pane)
	state.WriteReady()
	requireLines(t, output.take(), "%output %1 abc")
}

func TestDiscardKeepsLiteralLines(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "discard"})
	pane := &testPane{id: 1}

	pane.produce("dropped")
	state.WriteOutput(pane)
	state.Write("%exit")
	state.Discard()
	state.WriteReady()

	requireLines(t, output.take(), "%exit")
	if !state.AllDone() {
		t.Error("AllDone: got false")
	}
}

func TestControlControlStartsWithDCS(t *testing.T) {
	t.Parallel()
	_, output, _ := newTestState(t, &testClient{name: "cc", flags: FlagControlControl})

	if got := output.buffer.String(); got != "\x1bP1000p" {
		t.Errorf("initial output: got %q, want DCS start", got)
	}
	if !output.enabled {
		t.Error("write notification not enabled")
	}
}

func TestStopReleasesEverything(t *testing.T) {
	t.Parallel()
	state, _, fake := newTestState(t, &testClient{name: "stop"})
	pane := &testPane{id: 1}

	pane.produce("queued")
	state.WriteOutput(pane)
	state.AddSubscription("s", ScopeSession, 0, "#{session_name}")
	state.Stop()

	if state.PendingCount() != 0 || state.QueuedBlocks() != 0 {
		t.Errorf("after Stop: pending=%d blocks=%d", state.PendingCount(), state.QueuedBlocks())
	}
	if fake.PendingCount() != 0 {
		t.Errorf("subscription timer still armed after Stop")
	}
}

func TestNotifications(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "notify"})

	state.NotifySessionsChanged()
	state.NotifySessionChanged(1, "main")
	state.NotifyWindowAdd(2, true)
	state.NotifyWindowAdd(3, false)
	state.NotifyWindowRenamed(2, "editor", true)
	state.NotifyWindowClose(3, false)
	state.NotifyPaneModeChanged(5)
	state.NotifyClientDetached("client-x")

	requireLines(t, output.take(),
		"%sessions-changed",
		"%session-changed $1 main",
		"%window-add @2",
		"%unlinked-window-add @3",
		"%window-renamed @2 editor",
		"%unlinked-window-close @3",
		"%pane-mode-changed %5",
		"%client-detached client-x",
	)
}

func TestWriteReadyReachesEveryPaneWhenOutputFillsFirst(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "crowded"})

	// With this many panes a single pass fills BufferHigh long before
	// it reaches the last one.
	const count = 300
	for id := uint32(1); id <= count; id++ {
		pane := &testPane{id: id}
		pane.produce(strings.Repeat("x", 100000))
		state.WriteOutput(pane)
	}

	served := make(map[string]bool)
	for pass := range 2 {
		state.WriteReady()
		lines := output.take()
		if len(lines) >= count {
			t.Fatalf("pass %d wrote %d lines; expected the output to fill first", pass, len(lines))
		}
		for _, line := range lines {
			fields := strings.SplitN(line, " ", 3)
			served[fields[1]] = true
		}
	}
	if len(served) != count {
		for id := uint32(1); id <= count; id++ {
			if !served["%"+itoa(id)] {
				t.Errorf("pane %%%d not served after two passes", id)
			}
		}
	}
}

func TestWriteReadyCopiesOnlyWhatItSends(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "backlog"})
	pane := &testPane{id: 1}
	pane.produce(strings.Repeat("z", 1<<20))
	state.WriteOutput(pane)

	sent := 0
	for passes := 0; state.PendingCount() != 0; passes++ {
		if passes > 1000 {
			t.Fatal("backlog never drained")
		}
		state.WriteReady()
		for _, line := range output.take() {
			sent += len(strings.TrimPrefix(line, "%output %1 "))
		}
	}
	if sent != 1<<20 {
		t.Errorf("sent %d bytes, want %d", sent, 1<<20)
	}
	if pane.copied != sent {
		t.Errorf("NewData returned %d bytes to send %d", pane.copied, sent)
	}
}

func TestFullyLostOutputWritesNothing(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "lossy"})
	pane := &testPane{id: 1}

	pane.produce("abcdef")
	state.WriteOutput(pane)
	// Every queued byte is gone before the client gets to it.
	pane.data = nil
	pane.base = 6
	state.WriteReady()

	if lines := output.take(); len(lines) != 0 {
		t.Errorf("got lines %q, want none", lines)
	}
	if pane.consumed != 6 {
		t.Errorf("consumed: got %d, want 6", pane.consumed)
	}
	if state.PendingCount() != 0 || state.QueuedBlocks() != 0 {
		t.Errorf("PendingCount=%d QueuedBlocks=%d, want 0 and 0", state.PendingCount(), state.QueuedBlocks())
	}
}
