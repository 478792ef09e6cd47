// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// MaximumLineLength bounds one line of a control-mode stream. An
// %output line carries at most one round's budget, escaped to four
// bytes per input byte, so this leaves ample room.
const MaximumLineLength = 1 << 20

// controlEnd terminates the stream of a control-control client.
const controlEnd = "\x1b\\"

// EventKind classifies an Event.
type EventKind int

const (
	// EventNotification is any %-line outside a reply block that is not
	// pane output or %exit.
	EventNotification EventKind = iota

	// EventOutput is an %output or %extended-output line, decoded.
	EventOutput

	// EventReply is a complete %begin ... %end (or %error) block.
	EventReply

	// EventExit is %exit. The server closes the stream after it.
	EventExit
)

// Event is one item read from a control-mode stream.
type Event struct {
	Kind EventKind

	// Name is the notification name without its leading %, for
	// example "window-add" or "pause".
	Name string

	// Args is the rest of the notification line after the name. For
	// EventExit it is the exit message, possibly empty.
	Args string

	// Pane, Age and Data are set for EventOutput. Age is only known
	// for %extended-output.
	Pane uint32
	Age  time.Duration
	Data []byte

	// Reply is set for EventReply.
	Reply *Reply
}

// Reply is the framed response to one command.
type Reply struct {
	Time   int64
	Number uint64
	Flags  int

	// Lines is the command's output, one entry per line.
	Lines []string

	// Failed is set when the block ended with %error.
	Failed bool
}

// Reader parses a control-mode stream into Events. It tracks
// %begin/%end blocks so that command output that happens to start with
// % is never mistaken for a notification.
type Reader struct {
	scanner *bufio.Scanner
	started bool
}

// NewReader reads control-mode lines from r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaximumLineLength)
	return &Reader{scanner: scanner}
}

// Next returns the next event. It returns io.EOF at the end of the
// stream, including after the terminator of a control-control stream.
func (reader *Reader) Next() (Event, error) {
	var reply *Reply
	for {
		line, err := reader.line()
		if err != nil {
			if reply != nil && errors.Is(err, io.EOF) {
				return Event{}, fmt.Errorf("stream ended inside reply %d: %w", reply.Number, io.ErrUnexpectedEOF)
			}
			return Event{}, err
		}

		if reply != nil {
			name, args, _ := strings.Cut(line, " ")
			if name != "%end" && name != "%error" {
				reply.Lines = append(reply.Lines, line)
				continue
			}
			// Only the guard line matching this block's %begin closes it.
			if closing, err := parseGuard(args); err == nil && closing.Number == reply.Number {
				reply.Failed = name == "%error"
				return Event{Kind: EventReply, Reply: reply}, nil
			}
			reply.Lines = append(reply.Lines, line)
			continue
		}

		if !strings.HasPrefix(line, "%") {
			return Event{}, fmt.Errorf("unexpected line outside reply: %q", line)
		}
		name, args, _ := strings.Cut(line[1:], " ")
		switch name {
		case "begin":
			guard, err := parseGuard(args)
			if err != nil {
				return Event{}, fmt.Errorf("parse %%begin: %w", err)
			}
			reply = &guard
		case "output":
			return parseOutput(args)
		case "extended-output":
			return parseExtendedOutput(args)
		case "exit":
			return Event{Kind: EventExit, Name: name, Args: args}, nil
		default:
			return Event{Kind: EventNotification, Name: name, Args: args}, nil
		}
	}
}

// line returns the next line with the control-control framing removed.
func (reader *Reader) line() (string, error) {
	if !reader.scanner.Scan() {
		if err := reader.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	line := reader.scanner.Text()
	if !reader.started {
		reader.started = true
		line = strings.TrimPrefix(line, controlStart)
	}
	if line == controlEnd {
		return "", io.EOF
	}
	return line, nil
}

// parseGuard parses the "time number flags" arguments of %begin, %end
// and %error.
func parseGuard(args string) (Reply, error) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return Reply{}, fmt.Errorf("guard %q: want time, number and flags", args)
	}
	seconds, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Reply{}, fmt.Errorf("guard time %q: %w", fields[0], err)
	}
	number, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Reply{}, fmt.Errorf("guard number %q: %w", fields[1], err)
	}
	flags, err := strconv.Atoi(fields[2])
	if err != nil {
		return Reply{}, fmt.Errorf("guard flags %q: %w", fields[2], err)
	}
	return Reply{Time: seconds, Number: number, Flags: flags}, nil
}

// parsePaneID parses "%N".
func parsePaneID(text string) (uint32, error) {
	if !strings.HasPrefix(text, "%") {
		return 0, fmt.Errorf("pane %q: want %%<id>", text)
	}
	id, err := strconv.ParseUint(text[1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("pane %q: %w", text, err)
	}
	return uint32(id), nil
}

// parseOutput parses "%N escaped-data".
func parseOutput(args string) (Event, error) {
	paneText, escaped, _ := strings.Cut(args, " ")
	pane, err := parsePaneID(paneText)
	if err != nil {
		return Event{}, fmt.Errorf("parse %%output: %w", err)
	}
	data, err := Unescape(escaped)
	if err != nil {
		return Event{}, fmt.Errorf("parse %%output %%%d: %w", pane, err)
	}
	return Event{Kind: EventOutput, Name: "output", Pane: pane, Data: data}, nil
}

// parseExtendedOutput parses "%N age-ms : escaped-data".
func parseExtendedOutput(args string) (Event, error) {
	paneText, rest, _ := strings.Cut(args, " ")
	pane, err := parsePaneID(paneText)
	if err != nil {
		return Event{}, fmt.Errorf("parse %%extended-output: %w", err)
	}
	ageText, rest, _ := strings.Cut(rest, " ")
	milliseconds, err := strconv.ParseUint(ageText, 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("parse %%extended-output %%%d age %q: %w", pane, ageText, err)
	}
	escaped, found := strings.CutPrefix(rest, ": ")
	if !found {
		return Event{}, fmt.Errorf("parse %%extended-output %%%d: missing \": \" separator", pane)
	}
	data, err := Unescape(escaped)
	if err != nil {
		return Event{}, fmt.Errorf("parse %%extended-output %%%d: %w", pane, err)
	}
	return Event{
		Kind: EventOutput,
		Name: "extended-output",
		Pane: pane,
		Age:  time.Duration(milliseconds) * time.Millisecond,
		Data: data,
	}, nil
}
