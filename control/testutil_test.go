// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bytes"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/muxwire/lib/clock"
)

// epoch is the fake clock's starting time in every test.
var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// testPane is an in-memory Pane. Everything it ever produced is kept,
// except that bytes before base are treated as lost.
type testPane struct {
	id       uint32
	dead     bool
	base     Offset
	data     []byte
	consumed Offset

	// copied totals the bytes NewData has returned.
	copied int
}

func (pane *testPane) ID() uint32     { return pane.id }
func (pane *testPane) Alive() bool    { return !pane.dead }
func (pane *testPane) Offset() Offset { return pane.base + Offset(len(pane.data)) }

func (pane *testPane) NewData(from Offset, limit int) ([]byte, Offset) {
	start := max(from, pane.base)
	if start >= pane.Offset() {
		return nil, start
	}
	data := pane.data[start-pane.base:]
	data = data[:min(len(data), limit)]
	pane.copied += len(data)
	return data, start
}

func (pane *testPane) Consume(to Offset) {
	pane.consumed = to
}

func (pane *testPane) Consumed() Offset {
	return pane.consumed
}

func (pane *testPane) produce(text string) {
	pane.data = append(pane.data, text...)
}

// testClient records Exit calls.
type testClient struct {
	name     string
	flags    ClientFlags
	pauseAge time.Duration
	exits    []string
}

func (client *testClient) Name() string            { return client.name }
func (client *testClient) Flags() ClientFlags      { return client.flags }
func (client *testClient) PauseAge() time.Duration { return client.pauseAge }
func (client *testClient) Exit(message string)     { client.exits = append(client.exits, message) }

// testOutput accumulates everything written. Nothing drains unless the
// test calls take.
type testOutput struct {
	buffer  bytes.Buffer
	enabled bool
}

func (output *testOutput) Len() int       { return output.buffer.Len() }
func (output *testOutput) Write(p []byte) { output.buffer.Write(p) }
func (output *testOutput) EnableWrite()   { output.enabled = true }
func (output *testOutput) DisableWrite()  { output.enabled = false }

// take returns the written lines, without their newlines, and empties
// the output.
func (output *testOutput) take() []string {
	text := output.buffer.String()
	output.buffer.Reset()
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// testSession is a fixed window layout whose format values the test
// sets directly, keyed by format and then by target description.
type testSession struct {
	id       uint32
	winlinks []Winlink
	values   map[string]string
}

func (session *testSession) ID() uint32          { return session.id }
func (session *testSession) Winlinks() []Winlink { return session.winlinks }

func (session *testSession) Expand(format string, target Target) string {
	key := format
	if target.Winlink != nil {
		key += "@" + itoa(target.Winlink.Window.ID)
	}
	if target.Pane != nil {
		key += "%" + itoa(target.Pane.ID)
	}
	return session.values[key]
}

func itoa(value uint32) string {
	return strconv.FormatUint(uint64(value), 10)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestState returns a State on a fake clock with a fresh output.
func newTestState(t *testing.T, client *testClient, options ...Option) (*State, *testOutput, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	output := &testOutput{}
	options = append([]Option{WithClock(fake), WithLogger(discardLogger())}, options...)
	return NewState(client, output, options...), output, fake
}

func requireLines(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %d lines %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
