// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server serves control-mode clients on a unix socket.
//
// A Server owns one Session whose panes each sit in a window of their
// own. A client connects and sends an imsg MsgIdentify carrying its
// control flags and, unless it asks for control-control mode, the
// descriptor its output should be written to. The server then runs a
// control.State for the client on a control.Loop, feeding it pane
// output through pane.Consumers and writing through a control.Sink.
//
// Commands arrive as MsgCommand lines and are answered with
// %begin/%end or %begin/%error blocks. The supported commands are
// refresh-client (-A, -B, -f, -C), list-panes, display-message,
// send-keys, new-window and kill-pane. An empty line disconnects the
// client: pending pane output is discarded, %exit is written, and once
// it has drained the server sends MsgExit (or, in control-control mode,
// closes the socket).
//
// Dial is the client side of the same protocol.
package server
