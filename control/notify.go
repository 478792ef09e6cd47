// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

// Notifications are literal lines: they go through Write, so a client
// never sees one ahead of pane output produced before it.
//
// Window notifications take linked, which says whether the window is
// linked into this client's session. Clients learn about windows in
// other sessions through the %unlinked-window-* forms.

// NotifySessionsChanged reports that a session was created or closed.
func (state *State) NotifySessionsChanged() {
	state.Write("%sessions-changed")
}

// NotifySessionChanged reports that the client is now attached to
// session id.
func (state *State) NotifySessionChanged(id uint32, name string) {
	state.Writef("%%session-changed $%d %s", id, name)
}

// NotifySessionRenamed reports a session's new name.
func (state *State) NotifySessionRenamed(id uint32, name string) {
	state.Writef("%%session-renamed $%d %s", id, name)
}

// NotifySessionWindowChanged reports the session's new current window.
func (state *State) NotifySessionWindowChanged(session, window uint32) {
	state.Writef("%%session-window-changed $%d @%d", session, window)
}

// NotifyWindowAdd reports a new window.
func (state *State) NotifyWindowAdd(window uint32, linked bool) {
	if linked {
		state.Writef("%%window-add @%d", window)
		return
	}
	state.Writef("%%unlinked-window-add @%d", window)
}

// NotifyWindowClose reports that a window was closed.
func (state *State) NotifyWindowClose(window uint32, linked bool) {
	if linked {
		state.Writef("%%window-close @%d", window)
		return
	}
	state.Writef("%%unlinked-window-close @%d", window)
}

// NotifyWindowRenamed reports a window's new name.
func (state *State) NotifyWindowRenamed(window uint32, name string, linked bool) {
	if linked {
		state.Writef("%%window-renamed @%d %s", window, name)
		return
	}
	state.Writef("%%unlinked-window-renamed @%d %s", window, name)
}

// NotifyWindowPaneChanged reports the window's new active pane.
func (state *State) NotifyWindowPaneChanged(window, pane uint32) {
	state.Writef("%%window-pane-changed @%d %%%d", window, pane)
}

// NotifyLayoutChange reports a window's new layout strings.
func (state *State) NotifyLayoutChange(window uint32, layout, visibleLayout, flags string) {
	state.Writef("%%layout-change @%d %s %s %s", window, layout, visibleLayout, flags)
}

// NotifyPaneModeChanged reports that a pane entered or left a mode.
func (state *State) NotifyPaneModeChanged(pane uint32) {
	state.Writef("%%pane-mode-changed %%%d", pane)
}

// NotifyClientDetached reports that another client left the server.
func (state *State) NotifyClientDetached(name string) {
	state.Writef("%%client-detached %s", name)
}
