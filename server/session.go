// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bureau-foundation/muxwire/control"
	"github.com/bureau-foundation/muxwire/pane"
)

// Session is the server's single session. Every pane gets a window of
// its own; the window shares the pane's id and is linked at the next
// free index. Session implements control.Session and is safe for
// concurrent use.
type Session struct {
	id   uint32
	name string

	mutex     sync.Mutex
	windows   []*window
	nextIndex int
}

// window is one pane and the process feeding it, if any.
type window struct {
	index   int
	name    string
	pane    *pane.Pane
	process *pane.Process
}

var _ control.Session = (*Session)(nil)

// NewSession creates an empty session.
func NewSession(id uint32, name string) *Session {
	return &Session{id: id, name: name}
}

// ID returns the session id.
func (session *Session) ID() uint32 {
	return session.id
}

// Name returns the session name.
func (session *Session) Name() string {
	return session.name
}

// add links a new window for p at the next index and returns the index.
func (session *Session) add(name string, p *pane.Pane, process *pane.Process) int {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	index := session.nextIndex
	session.nextIndex++
	session.windows = append(session.windows, &window{
		index:   index,
		name:    name,
		pane:    p,
		process: process,
	})
	return index
}

// lookup returns the window holding pane id.
func (session *Session) lookup(id uint32) (window, bool) {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	for _, w := range session.windows {
		if w.pane.ID() == id {
			return *w, true
		}
	}
	return window{}, false
}

// snapshot returns copies of the windows in index order.
func (session *Session) snapshot() []window {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	windows := make([]window, len(session.windows))
	for i, w := range session.windows {
		windows[i] = *w
	}
	return windows
}

// Winlinks returns one winlink per window. A pane whose producer has
// exited is reported dead.
func (session *Session) Winlinks() []control.Winlink {
	windows := session.snapshot()
	links := make([]control.Winlink, len(windows))
	for i, w := range windows {
		links[i] = control.Winlink{
			Index: w.index,
			Window: control.Window{
				ID:    w.pane.ID(),
				Panes: []control.WindowPane{{ID: w.pane.ID(), Dead: w.pane.Exited()}},
			},
		}
	}
	return links
}

// Expand replaces each #{variable} in format with its value for target.
// ## is a literal #. Variables that do not apply to the target, and
// unknown ones, expand to nothing.
//
//	session_id     $<id>          session_name
//	window_id      @<id>          window_index   window_name
//	pane_id        %<id>          pane_dead      pane_pid
//	pane_width     pane_height
func (session *Session) Expand(format string, target control.Target) string {
	var builder strings.Builder
	for {
		start := strings.IndexByte(format, '#')
		if start < 0 || start == len(format)-1 {
			builder.WriteString(format)
			return builder.String()
		}
		builder.WriteString(format[:start])
		switch format[start+1] {
		case '#':
			builder.WriteByte('#')
			format = format[start+2:]
		case '{':
			end := strings.IndexByte(format[start:], '}')
			if end < 0 {
				builder.WriteString(format[start:])
				return builder.String()
			}
			builder.WriteString(session.variable(format[start+2:start+end], target))
			format = format[start+end+1:]
		default:
			builder.WriteByte('#')
			format = format[start+1:]
		}
	}
}

func (session *Session) variable(name string, target control.Target) string {
	switch name {
	case "session_id":
		return "$" + strconv.FormatUint(uint64(session.id), 10)
	case "session_name":
		return session.name
	}

	var w window
	var found bool
	switch {
	case target.Pane != nil:
		w, found = session.lookup(target.Pane.ID)
	case target.Winlink != nil:
		w, found = session.lookup(target.Winlink.Window.ID)
	}
	if !found {
		return ""
	}

	switch name {
	case "window_id":
		return "@" + strconv.FormatUint(uint64(w.pane.ID()), 10)
	case "window_index":
		if target.Winlink != nil {
			return strconv.Itoa(target.Winlink.Index)
		}
		return strconv.Itoa(w.index)
	case "window_name":
		return w.name
	}

	if target.Pane == nil {
		return ""
	}
	switch name {
	case "pane_id":
		return "%" + strconv.FormatUint(uint64(w.pane.ID()), 10)
	case "pane_dead":
		if w.pane.Exited() {
			return "1"
		}
		return "0"
	case "pane_pid":
		if w.process == nil {
			return ""
		}
		return strconv.Itoa(w.process.PID())
	case "pane_width", "pane_height":
		size := pane.DefaultSize
		if w.process != nil {
			size = w.process.Size()
		}
		if name == "pane_width" {
			return strconv.Itoa(int(size.Columns))
		}
		return strconv.Itoa(int(size.Rows))
	}
	return ""
}

// windowName derives a window name from a command line.
func windowName(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return filepath.Base(argv[0])
}
