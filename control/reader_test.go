// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestReaderParsesStream(t *testing.T) {
	t.Parallel()
	stream := "\x1bP1000p%begin 1700000000 1 1\n" +
		"%end 1700000000 1 1\n" +
		"%output %3 hi\\012\n" +
		"%extended-output %3 250 : x\n" +
		"%window-add @1\n" +
		"%begin 1700000001 2 1\n" +
		"%not-a-notification\n" +
		"%end 1700000001 9 1\n" +
		"%error 1700000001 2 1\n" +
		"%exit too far behind\n" +
		"\x1b\\\n"
	reader := NewReader(strings.NewReader(stream))

	event := mustNext(t, reader)
	if event.Kind != EventReply || event.Reply.Number != 1 || event.Reply.Time != 1700000000 || event.Reply.Failed {
		t.Fatalf("first event: got %+v", event)
	}

	event = mustNext(t, reader)
	if event.Kind != EventOutput || event.Pane != 3 || string(event.Data) != "hi\n" || event.Age != 0 {
		t.Fatalf("output event: got %+v", event)
	}

	event = mustNext(t, reader)
	if event.Kind != EventOutput || event.Name != "extended-output" || event.Age != 250*time.Millisecond || string(event.Data) != "x" {
		t.Fatalf("extended output event: got %+v", event)
	}

	event = mustNext(t, reader)
	if event.Kind != EventNotification || event.Name != "window-add" || event.Args != "@1" {
		t.Fatalf("notification: got %+v", event)
	}

	event = mustNext(t, reader)
	if event.Kind != EventReply || event.Reply.Number != 2 || !event.Reply.Failed {
		t.Fatalf("error reply: got %+v", event)
	}
	wantLines := []string{"%not-a-notification", "%end 1700000001 9 1"}
	if !slices.Equal(event.Reply.Lines, wantLines) {
		t.Errorf("reply lines: got %q, want %q", event.Reply.Lines, wantLines)
	}

	event = mustNext(t, reader)
	if event.Kind != EventExit || event.Args != "too far behind" {
		t.Fatalf("exit: got %+v", event)
	}

	if _, err := reader.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after terminator: got %v, want io.EOF", err)
	}
}

func TestReaderRoundTripsStateOutput(t *testing.T) {
	t.Parallel()
	state, output, _ := newTestState(t, &testClient{name: "round-trip"})
	pane := &testPane{id: 8}
	payload := "tab\there\r\nbell\a\\"
	pane.produce(payload)
	state.WriteOutput(pane)
	state.WriteReady()

	reader := NewReader(strings.NewReader(output.buffer.String()))
	event := mustNext(t, reader)
	if event.Kind != EventOutput || event.Pane != 8 || string(event.Data) != payload {
		t.Errorf("got %+v, want pane 8 with %q", event, payload)
	}
}

func TestReaderErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		stream string
		want   error
	}{
		{name: "truncated reply", stream: "%begin 1 1 1\npartial\n", want: io.ErrUnexpectedEOF},
		{name: "bad pane", stream: "%output 3 data\n"},
		{name: "bad escape", stream: "%output %3 \\9\n"},
		{name: "missing separator", stream: "%extended-output %3 10 data\n"},
		{name: "bad guard", stream: "%begin now\n"},
		{name: "stray line", stream: "hello\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewReader(strings.NewReader(test.stream)).Next()
			if err == nil {
				t.Fatal("expected error")
			}
			if test.want != nil && !errors.Is(err, test.want) {
				t.Errorf("got %v, want %v", err, test.want)
			}
		})
	}
}

func mustNext(t *testing.T, reader *Reader) Event {
	t.Helper()
	event, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return event
}
