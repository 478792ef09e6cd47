// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"strconv"
	"strings"
	"time"
)

// ClientFlags are the per-client switches the scheduler consults.
type ClientFlags uint32

const (
	// FlagNoOutput suppresses %output entirely. Pane bytes are still
	// retired so they are never sent later.
	FlagNoOutput ClientFlags = 1 << iota

	// FlagPauseAfter pauses a pane whose oldest queued block is older
	// than the client's pause age instead of disconnecting the client.
	// Pane data is sent as %extended-output with the block age.
	FlagPauseAfter

	// FlagWaitExit keeps the client connected after its session ends
	// until its output has drained and it sends an empty line.
	FlagWaitExit

	// FlagControlControl marks a client whose output shares the command
	// socket. The stream starts with a DCS sequence.
	FlagControlControl

	// FlagUnattached marks a client with no session. It receives no
	// pane output.
	FlagUnattached
)

// ignoreFlags are the flags under which no pane output is queued.
const ignoreFlags = FlagNoOutput | FlagUnattached

// ClientConfig is the mutable part of a control client's behaviour.
type ClientConfig struct {
	Flags    ClientFlags
	PauseAge time.Duration
}

// Apply parses a comma-separated flag list and updates config. A name
// prefixed with "!" clears the flag. Recognised names:
//
//	pause-after        pause panes as soon as output is queued behind
//	pause-after=N      pause panes N seconds behind
//	no-output          suppress pane output
//	wait-exit          stay connected until told to exit
//
// Unknown names are ignored.
func (config *ClientConfig) Apply(list string) {
	for name := range strings.SplitSeq(list, ",") {
		negate := strings.HasPrefix(name, "!")
		name = strings.TrimPrefix(name, "!")

		var flag ClientFlags
		switch {
		case name == "pause-after":
			flag = FlagPauseAfter
			config.PauseAge = 0
		case strings.HasPrefix(name, "pause-after="):
			seconds, err := strconv.ParseUint(strings.TrimPrefix(name, "pause-after="), 10, 32)
			if err != nil {
				continue
			}
			flag = FlagPauseAfter
			config.PauseAge = time.Duration(seconds) * time.Second
		case name == "no-output":
			flag = FlagNoOutput
		case name == "wait-exit":
			flag = FlagWaitExit
		default:
			continue
		}

		if negate {
			config.Flags &^= flag
		} else {
			config.Flags |= flag
		}
	}
}

// String renders the flags in the same syntax Apply accepts.
func (config ClientConfig) String() string {
	var names []string
	if config.Flags&FlagPauseAfter != 0 {
		if config.PauseAge == 0 {
			names = append(names, "pause-after")
		} else {
			names = append(names, "pause-after="+strconv.FormatInt(int64(config.PauseAge/time.Second), 10))
		}
	}
	if config.Flags&FlagNoOutput != 0 {
		names = append(names, "no-output")
	}
	if config.Flags&FlagWaitExit != 0 {
		names = append(names, "wait-exit")
	}
	return strings.Join(names, ",")
}
