// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"testing"

	"github.com/bureau-foundation/muxwire/control"
	"github.com/bureau-foundation/muxwire/pane"
)

func TestSessionWinlinks(t *testing.T) {
	t.Parallel()
	session := NewSession(4, "work")
	first := pane.New(7, 64, discardLogger())
	second := pane.New(9, 64, discardLogger())
	session.add("one", first, nil)
	session.add("two", second, nil)
	second.Close()

	links := session.Winlinks()
	if len(links) != 2 {
		t.Fatalf("winlinks: got %d, want 2", len(links))
	}
	want := []control.Winlink{
		{Index: 0, Window: control.Window{ID: 7, Panes: []control.WindowPane{{ID: 7}}}},
		{Index: 1, Window: control.Window{ID: 9, Panes: []control.WindowPane{{ID: 9, Dead: true}}}},
	}
	for i := range want {
		got := links[i]
		if got.Index != want[i].Index || got.Window.ID != want[i].Window.ID ||
			len(got.Window.Panes) != 1 || got.Window.Panes[0] != want[i].Window.Panes[0] {
			t.Errorf("winlink %d: got %+v, want %+v", i, got, want[i])
		}
	}
}

func TestSessionExpand(t *testing.T) {
	t.Parallel()
	session := NewSession(4, "work")
	live := pane.New(7, 64, discardLogger())
	dead := pane.New(9, 64, discardLogger())
	session.add("editor", live, nil)
	session.add("logs", dead, nil)
	dead.Close()

	sessionTarget := control.Target{SessionID: 4}
	windowTarget := control.Target{
		SessionID: 4,
		Winlink:   &control.Winlink{Index: 0, Window: control.Window{ID: 7}},
	}
	paneTarget := control.Target{
		SessionID: 4,
		Winlink:   &control.Winlink{Index: 1, Window: control.Window{ID: 9}},
		Pane:      &control.WindowPane{ID: 9, Dead: true},
	}

	tests := []struct {
		name   string
		format string
		target control.Target
		want   string
	}{
		{name: "session", format: "#{session_id} #{session_name}", target: sessionTarget, want: "$4 work"},
		{name: "window vars need a window", format: "[#{window_name}]", target: sessionTarget, want: "[]"},
		{name: "window", format: "#{window_id}:#{window_index}:#{window_name}", target: windowTarget, want: "@7:0:editor"},
		{name: "pane vars need a pane", format: "[#{pane_id}]", target: windowTarget, want: "[]"},
		{name: "pane", format: "#{pane_id} #{pane_dead} #{window_name}", target: paneTarget, want: "%9 1 logs"},
		{name: "size without a process", format: "#{pane_width}x#{pane_height}", target: paneTarget, want: "80x24"},
		{name: "no pid without a process", format: "<#{pane_pid}>", target: paneTarget, want: "<>"},
		{name: "unknown variable", format: "a#{nope}b", target: sessionTarget, want: "ab"},
		{name: "escaped hash", format: "## #{session_name}", target: sessionTarget, want: "# work"},
		{name: "lone hash", format: "#x #", target: sessionTarget, want: "#x #"},
		{name: "unterminated", format: "x #{session_name", target: sessionTarget, want: "x #{session_name"},
		{name: "plain", format: "plain text", target: sessionTarget, want: "plain text"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := session.Expand(test.format, test.target); got != test.want {
				t.Errorf("Expand(%q): got %q, want %q", test.format, got, test.want)
			}
		})
	}
}

func TestWindowName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		argv []string
		want string
	}{
		{argv: []string{"/bin/bash", "-l"}, want: "bash"},
		{argv: []string{"top"}, want: "top"},
		{argv: nil, want: ""},
	}
	for _, test := range tests {
		if got := windowName(test.argv); got != test.want {
			t.Errorf("windowName(%q): got %q, want %q", test.argv, got, test.want)
		}
	}
}
