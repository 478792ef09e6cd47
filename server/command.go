// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"syscall"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/muxwire/control"
	"github.com/bureau-foundation/muxwire/pane"
)

// errMalformedLine is returned by splitCommand for unbalanced quotes or
// a trailing escape.
var errMalformedLine = errors.New("malformed command line")

// errCommandSequence is returned by splitCommand for a line that uses
// an unquoted shell operator.
var errCommandSequence = errors.New("command sequences and redirections are not supported")

// splitCommand splits a command line into words with shell quoting
// rules. Variables and backticks are left alone, so formats such as
// #{pane_id} and $HOME reach the command as written.
func splitCommand(line string) ([]string, error) {
	parser := shellwords.NewParser()
	words, err := parser.Parse(line)
	if err != nil {
		return nil, errMalformedLine
	}
	if parser.Position >= 0 {
		return nil, errCommandSequence
	}
	return words, nil
}

// commandFunc runs one command for client and returns its output lines.
type commandFunc func(client *client, args []string) ([]string, error)

var commands = map[string]commandFunc{
	"refresh-client":  refreshClient,
	"list-panes":      listPanes,
	"display-message": displayMessage,
	"send-keys":       sendKeys,
	"new-window":      newWindow,
	"kill-pane":       killPane,
}

// execute parses and runs line.
func (client *client) execute(line string) ([]string, error) {
	words, err := splitCommand(line)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if len(words) == 0 {
		return nil, nil
	}
	command, ok := commands[words[0]]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", words[0])
	}
	return command(client, words[1:])
}

// newFlagSet returns a FlagSet that reports errors instead of printing
// them.
func newFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.SetInterspersed(false)
	return flags
}

// parsePaneTarget parses a -t value of the form %<id>.
func (client *client) parsePaneTarget(value string) (window, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(value, "%"), 10, 32)
	if err != nil || !strings.HasPrefix(value, "%") {
		return window{}, fmt.Errorf("can't find pane: %s", value)
	}
	w, ok := client.server.session.lookup(uint32(id))
	if !ok {
		return window{}, fmt.Errorf("can't find pane: %s", value)
	}
	return w, nil
}

// refreshClient changes the client's pane states, subscriptions, flags
// or size.
//
//	-A %<id>:on|off|pause|continue   (repeatable)
//	-B name:what:format | name       (repeatable)
//	-f flag-list
//	-C <columns>x<rows>
func refreshClient(client *client, args []string) ([]string, error) {
	flags := newFlagSet("refresh-client")
	actions := flags.StringArrayP("pane-action", "A", nil, "set a pane's output state")
	subscriptions := flags.StringArrayP("subscribe", "B", nil, "add or remove a format subscription")
	flagList := flags.StringP("flags", "f", "", "set client flags")
	size := flags.StringP("size", "C", "", "set the client size")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	for _, value := range *actions {
		id, action, err := control.ParsePaneAction(value)
		if err != nil {
			return nil, err
		}
		consumer, ok := client.consumers[id]
		if !ok {
			return nil, fmt.Errorf("unknown pane: %%%d", id)
		}
		client.state.ApplyPaneAction(consumer, action)
	}
	for _, value := range *subscriptions {
		parsed, err := control.ParseSubscription(value)
		if err != nil {
			return nil, err
		}
		client.state.ApplySubscription(parsed)
	}
	if flags.Changed("flags") {
		client.config.Apply(*flagList)
		client.logger.Debug("client flags changed", "flags", client.config.String())
	}
	if *size != "" {
		parsed, err := parseSize(*size)
		if err != nil {
			return nil, err
		}
		client.server.resize(parsed)
	}
	return nil, nil
}

// parseSize parses WxH or W,H.
func parseSize(value string) (pane.Size, error) {
	columns, rows, ok := strings.Cut(value, "x")
	if !ok {
		columns, rows, ok = strings.Cut(value, ",")
	}
	if !ok {
		return pane.Size{}, fmt.Errorf("bad size argument: %s", value)
	}
	width, widthErr := strconv.ParseUint(columns, 10, 16)
	height, heightErr := strconv.ParseUint(rows, 10, 16)
	if widthErr != nil || heightErr != nil || width == 0 || height == 0 {
		return pane.Size{}, fmt.Errorf("bad size argument: %s", value)
	}
	return pane.Size{Columns: uint16(width), Rows: uint16(height)}, nil
}

// listPanes prints one line per pane: %<id> <index> <name>, with
// "(dead)" appended once the pane's producer has exited.
func listPanes(client *client, args []string) ([]string, error) {
	if len(args) != 0 {
		return nil, errors.New("list-panes takes no arguments")
	}
	var lines []string
	for _, w := range client.server.session.snapshot() {
		line := fmt.Sprintf("%%%d %d %s", w.pane.ID(), w.index, w.name)
		if w.pane.Exited() {
			line += " (dead)"
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// displayMessage prints a format expanded for the session, or for a
// pane given with -t.
func displayMessage(client *client, args []string) ([]string, error) {
	flags := newFlagSet("display-message")
	flags.BoolP("print", "p", true, "print the message")
	targetValue := flags.StringP("target", "t", "", "target pane")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	session := client.server.session
	target := control.Target{SessionID: session.ID()}
	if *targetValue != "" {
		w, err := client.parsePaneTarget(*targetValue)
		if err != nil {
			return nil, err
		}
		target.Winlink = &control.Winlink{Index: w.index, Window: control.Window{ID: w.pane.ID()}}
		target.Pane = &control.WindowPane{ID: w.pane.ID(), Dead: w.pane.Exited()}
	}
	return []string{session.Expand(strings.Join(flags.Args(), " "), target)}, nil
}

// keyNames maps the key names send-keys understands to their bytes.
var keyNames = map[string]string{
	"Enter":  "\r",
	"Space":  " ",
	"Tab":    "\t",
	"Escape": "\x1b",
	"BSpace": "\x7f",
	"C-c":    "\x03",
	"C-d":    "\x04",
	"C-z":    "\x1a",
}

// sendKeys writes keys to a pane's process. Each argument is a key name
// or, with -l or when not a known name, literal text.
func sendKeys(client *client, args []string) ([]string, error) {
	flags := newFlagSet("send-keys")
	targetValue := flags.StringP("target", "t", "", "target pane")
	literal := flags.BoolP("literal", "l", false, "send arguments literally")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	w, err := client.parsePaneTarget(*targetValue)
	if err != nil {
		return nil, err
	}
	if w.process == nil || w.pane.Exited() {
		return nil, fmt.Errorf("pane %%%d has no running process", w.pane.ID())
	}

	var input strings.Builder
	for _, key := range flags.Args() {
		if sequence, ok := keyNames[key]; ok && !*literal {
			input.WriteString(sequence)
			continue
		}
		input.WriteString(key)
	}
	if _, err := w.process.Write([]byte(input.String())); err != nil {
		return nil, fmt.Errorf("writing to pane %%%d: %w", w.pane.ID(), err)
	}
	return nil, nil
}

// newWindow starts a command in a new window. Without arguments the
// server's default command is used.
func newWindow(client *client, args []string) ([]string, error) {
	flags := newFlagSet("new-window")
	printID := flags.BoolP("print", "P", false, "print the new pane id")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	process, err := client.server.Spawn(flags.Args())
	if err != nil {
		return nil, err
	}
	if *printID {
		return []string{fmt.Sprintf("%%%d", process.Pane().ID())}, nil
	}
	return nil, nil
}

// killPane hangs up a pane's process.
func killPane(client *client, args []string) ([]string, error) {
	flags := newFlagSet("kill-pane")
	targetValue := flags.StringP("target", "t", "", "target pane")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	w, err := client.parsePaneTarget(*targetValue)
	if err != nil {
		return nil, err
	}
	if w.process == nil {
		w.pane.Close()
		return nil, nil
	}
	if err := w.process.Signal(syscall.SIGHUP); err != nil {
		return nil, fmt.Errorf("killing pane %%%d: %w", w.pane.ID(), err)
	}
	return nil, nil
}
