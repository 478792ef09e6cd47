// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// SocketPair returns both ends of a connected, non-blocking unix stream
// socket pair. Both descriptors are closed when the test completes.
//
// The raw descriptors suit code that drives sockets with writev and
// sendmsg directly; wrap them with os.NewFile when an *os.File is needed.
func SocketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("creating socket pair: %v", err)
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// ReadAvailable drains everything currently readable from a
// non-blocking descriptor and returns it. Stops at EAGAIN or EOF.
func ReadAvailable(t *testing.T, fd int) []byte {
	t.Helper()
	var result []byte
	buffer := make([]byte, 65536)
	for {
		n, err := unix.Read(fd, buffer)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return result
		}
		if err != nil {
			t.Fatalf("reading descriptor %d: %v", fd, err)
		}
		if n == 0 {
			return result
		}
		result = append(result, buffer[:n]...)
	}
}

// SocketFiles returns a connected unix stream socket pair as *os.File
// values registered with the runtime poller, so that deadlines and
// SyscallConn work on them. Both are closed when the test completes.
func SocketFiles(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	local, remote := SocketPair(t)
	// The files own duplicates so that SocketPair's cleanup and ours do
	// not close the same descriptor twice.
	return dupFile(t, local, "local"), dupFile(t, remote, "remote")
}

func dupFile(t *testing.T, fd int, name string) *os.File {
	t.Helper()
	duplicate, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("duplicating descriptor %d: %v", fd, err)
	}
	if err := unix.SetNonblock(duplicate, true); err != nil {
		t.Fatalf("setting %s non-blocking: %v", name, err)
	}
	file := os.NewFile(uintptr(duplicate), name)
	t.Cleanup(func() { _ = file.Close() })
	return file
}
