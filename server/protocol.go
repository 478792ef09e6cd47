// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"syscall"

	"github.com/bureau-foundation/muxwire/lib/imsg"
)

// ProtocolVersion is sent in Identify. The server refuses clients
// speaking any other version.
const ProtocolVersion = 1

// Message types carried on the command socket. Every payload is CBOR.
const (
	// MsgIdentify is the first message a client sends. Unless the
	// client asks for control-control mode it carries the client's
	// output descriptor.
	MsgIdentify uint32 = 100 + iota

	// MsgCommand carries one command line from the client.
	MsgCommand

	// MsgExit is the server's last message to a client whose output
	// goes to a passed descriptor. Control-control clients see the
	// %exit line and the socket closing instead.
	MsgExit
)

// Identify describes a client connecting in control mode.
type Identify struct {
	Version int `cbor:"version"`

	// Flags is a control flag list such as "pause-after=2,no-output",
	// applied on top of the server's defaults.
	Flags string `cbor:"flags,omitempty"`

	// ControlControl selects control-control mode: output is written
	// back on the command socket, starting with a DCS sequence.
	ControlControl bool `cbor:"control_control,omitempty"`
}

// Command is one line typed by the client.
type Command struct {
	Line string `cbor:"line"`
}

// Exit tells the client why it was disconnected. Message is empty for
// a client that asked to leave.
type Exit struct {
	Message string `cbor:"message,omitempty"`
}

// receive returns the next complete message from channel, reading from
// conn as needed. It blocks in the runtime poller, so a read deadline
// on the connection or closing it interrupts the wait.
func receive(conn syscall.RawConn, channel *imsg.Channel) (*imsg.Message, error) {
	for {
		message, err := channel.Get()
		if err != nil || message != nil {
			return message, err
		}
		var readErr error
		err = conn.Read(func(uintptr) bool {
			_, readErr = channel.Read()
			return !errors.Is(readErr, imsg.ErrAgain)
		})
		if err != nil {
			return nil, err
		}
		if readErr != nil {
			return nil, readErr
		}
	}
}

// flush writes everything queued on channel, waiting for the socket to
// become writable when it fills.
func flush(conn syscall.RawConn, channel *imsg.Channel) error {
	var flushErr error
	err := conn.Write(func(uintptr) bool {
		flushErr = channel.Flush()
		return !errors.Is(flushErr, imsg.ErrAgain)
	})
	if err != nil {
		return err
	}
	return flushErr
}
