// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/muxwire/lib/testutil"
)

func requirePTY(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skipf("no PTY support: %v", err)
	}
}

func TestSpawnCapturesOutput(t *testing.T) {
	t.Parallel()
	requirePTY(t)
	pane := New(1, DefaultHistory, testLogger())

	process, err := Spawn(pane, []string{"/bin/sh", "-c", "printf 'hello from pane'"}, DefaultSize)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	testutil.RequireClosed(t, process.Done(), 10*time.Second, "process exit")
	if err := process.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}

	data, _ := pane.ring.ReadFrom(0)
	if !strings.Contains(string(data), "hello from pane") {
		t.Errorf("pane output: got %q", data)
	}
	if !pane.Exited() {
		t.Error("pane not closed after the process exited")
	}
}

func TestSpawnReportsExitStatus(t *testing.T) {
	t.Parallel()
	requirePTY(t)
	pane := New(2, DefaultHistory, testLogger())

	process, err := Spawn(pane, []string{"/bin/sh", "-c", "exit 3"}, DefaultSize)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	err = process.Wait()
	if got := exitStatus(err); got != "exit 3" {
		t.Errorf("exit status: got %q, want \"exit 3\"", got)
	}
}

func TestSpawnAppliesSize(t *testing.T) {
	t.Parallel()
	requirePTY(t)
	pane := New(3, DefaultHistory, testLogger())

	process, err := Spawn(pane, []string{"/bin/sh", "-c", "stty size"}, Size{Columns: 132, Rows: 43})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	process.Wait()

	data, _ := pane.ring.ReadFrom(0)
	if !strings.Contains(string(data), "43 132") {
		t.Errorf("stty size: got %q, want \"43 132\"", data)
	}
}

func TestSpawnEmptyCommand(t *testing.T) {
	t.Parallel()
	if _, err := Spawn(New(4, 16, testLogger()), nil, DefaultSize); err == nil {
		t.Error("expected error for an empty command")
	}
}

func TestProcessInputAndResize(t *testing.T) {
	t.Parallel()
	requirePTY(t)
	pane := New(5, DefaultHistory, testLogger())

	process, err := Spawn(pane, []string{"/bin/sh", "-c", "read line; stty size; echo got $line"}, DefaultSize)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if got := process.Size(); got != DefaultSize {
		t.Errorf("Size: got %+v, want %+v", got, DefaultSize)
	}
	if process.PID() <= 0 {
		t.Errorf("PID: got %d", process.PID())
	}

	size := Size{Columns: 100, Rows: 30}
	if err := process.Resize(size); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if got := process.Size(); got != size {
		t.Errorf("Size after Resize: got %+v, want %+v", got, size)
	}
	if _, err := process.Write([]byte("ping\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	testutil.RequireClosed(t, process.Done(), 10*time.Second, "process exit")

	data, _ := pane.ring.ReadFrom(0)
	if !strings.Contains(string(data), "30 100") {
		t.Errorf("size after resize: got %q", data)
	}
	if !strings.Contains(string(data), "got ping") {
		t.Errorf("input not delivered: got %q", data)
	}
}
