// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/muxwire/lib/netutil"
	"github.com/bureau-foundation/muxwire/lib/testutil"
)

// startSinkState runs a State writing through a Sink on local, on its
// own Loop. The returned function runs a task on the loop and waits for
// it to finish.
func startSinkState(t *testing.T, local *os.File, client *testClient) func(func(*State, *Sink)) {
	t.Helper()
	conn, err := local.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn: %v", err)
	}
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	var state *State
	var sink *Sink
	run := func(task func(*State, *Sink)) {
		t.Helper()
		done := make(chan struct{})
		loop.Post(func() {
			task(state, sink)
			close(done)
		})
		testutil.RequireClosed(t, done, 5*time.Second, "loop task")
	}
	run(func(*State, *Sink) {
		sink, err = NewSink(loop, conn, discardLogger())
		if err != nil {
			return
		}
		state = NewState(client, sink, WithPost(func(f func()) { loop.Post(f) }), WithLogger(discardLogger()))
		sink.OnReady(state.WriteReady)
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	return run
}

func TestSinkDeliversOutput(t *testing.T) {
	t.Parallel()
	local, remote := testutil.SocketFiles(t)
	run := startSinkState(t, local, &testClient{name: "sink"})
	pane := &testPane{id: 1}

	run(func(state *State, _ *Sink) {
		pane.produce("hello")
		state.WriteOutput(pane)
		state.Write("%sessions-changed")
	})

	if err := remote.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil { //nolint:realclock socket deadline
		t.Fatalf("SetReadDeadline: %v", err)
	}
	reader := NewReader(remote)
	event := mustNext(t, reader)
	if event.Kind != EventOutput || string(event.Data) != "hello" {
		t.Fatalf("first event: got %+v", event)
	}
	event = mustNext(t, reader)
	if event.Kind != EventNotification || event.Name != "sessions-changed" {
		t.Fatalf("second event: got %+v", event)
	}
}

func TestSinkWaitsForSlowReader(t *testing.T) {
	t.Parallel()
	local, remote := testutil.SocketFiles(t)
	conn, err := local.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn: %v", err)
	}
	var optionErr error
	if err := conn.Control(func(fd uintptr) {
		optionErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)
	}); err != nil {
		t.Fatalf("Control: %v", err)
	}
	if optionErr != nil {
		t.Fatalf("SO_SNDBUF: %v", optionErr)
	}
	run := startSinkState(t, local, &testClient{name: "slow-reader"})

	payload := bytes.Repeat([]byte("0123456789abcdef"), 16*1024)
	pane := &testPane{id: 2}
	run(func(state *State, _ *Sink) {
		pane.produce(string(payload))
		state.WriteOutput(pane)
	})

	if err := remote.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil { //nolint:realclock socket deadline
		t.Fatalf("SetReadDeadline: %v", err)
	}
	reader := NewReader(remote)
	var received []byte
	for len(received) < len(payload) {
		event := mustNext(t, reader)
		if event.Kind != EventOutput || event.Pane != 2 {
			t.Fatalf("unexpected event %+v", event)
		}
		received = append(received, event.Data...)
	}
	if !bytes.Equal(received, payload) {
		t.Fatal("received bytes differ from the pane's output")
	}

	run(func(state *State, sink *Sink) {
		if state.PendingCount() != 0 || sink.Len() != 0 {
			t.Errorf("after delivery: pending=%d queued=%d", state.PendingCount(), sink.Len())
		}
	})
}

func TestSinkReportsClosedPeer(t *testing.T) {
	t.Parallel()
	local, remote := testutil.SocketFiles(t)
	remoteConn, err := remote.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn: %v", err)
	}
	if err := remoteConn.Control(func(fd uintptr) { _ = unix.Shutdown(int(fd), unix.SHUT_RDWR) }); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	failures := make(chan error, 1)
	run := startSinkState(t, local, &testClient{name: "gone"})
	run(func(state *State, sink *Sink) {
		sink.OnError(func(err error) { failures <- err })
		state.Write(strings.Repeat("x", 100))
	})

	err = testutil.RequireReceive(t, failures, 5*time.Second, "sink failure")
	if !netutil.IsExpectedCloseError(err) {
		t.Errorf("failure %v is not an expected close error", err)
	}
	run(func(_ *State, sink *Sink) {
		if !errors.Is(sink.Err(), err) {
			t.Errorf("Err: got %v, want %v", sink.Err(), err)
		}
		sink.Write([]byte("ignored"))
		if sink.Len() != 0 {
			t.Errorf("failed sink queued %d bytes", sink.Len())
		}
	})
}

func TestSinkRefillsAtLowWatermarkWhileBytesQueued(t *testing.T) {
	t.Parallel()
	local, _ := testutil.SocketFiles(t)
	conn, err := local.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn: %v", err)
	}
	run := startSinkState(t, local, &testClient{name: "low-watermark"})

	// Fill the socket so that nothing more is accepted until the peer,
	// which never reads, makes room.
	var fillErr error
	if err := conn.Control(func(fd uintptr) {
		chunk := make([]byte, 64*1024)
		for size := len(chunk); size > 0; {
			_, err := unix.Write(int(fd), chunk[:size])
			switch {
			case err == unix.EAGAIN:
				size /= 2
			case err == unix.EINTR:
			case err != nil:
				fillErr = err
				return
			}
		}
	}); err != nil {
		t.Fatalf("Control: %v", err)
	}
	if fillErr != nil {
		t.Fatalf("filling socket: %v", fillErr)
	}

	var queuedAtReady []int
	run(func(state *State, sink *Sink) {
		sink.OnReady(func() {
			queuedAtReady = append(queuedAtReady, sink.Len())
			state.WriteReady()
		})
		sink.Write([]byte(strings.Repeat("q", 100) + "\n"))
		sink.EnableWrite()
	})
	// service was posted by EnableWrite, so it has run by the time this
	// task does.
	run(func(_ *State, sink *Sink) {
		if sink.Len() != 101 {
			t.Errorf("queued: got %d, want 101 still waiting for the peer", sink.Len())
		}
	})
	if len(queuedAtReady) == 0 {
		t.Fatal("ready was never called while the socket was full")
	}
	if queuedAtReady[0] == 0 || queuedAtReady[0] > BufferLow {
		t.Errorf("ready called with %d bytes queued, want between 1 and BufferLow", queuedAtReady[0])
	}
}
