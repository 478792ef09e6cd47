// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import (
	"errors"

	"golang.org/x/sys/unix"
)

var (
	// ErrInvalid reports a bad constructor or encoding argument: a
	// zero-length fixed buffer, a ceiling below the initial size, or a
	// value that does not fit the requested width.
	ErrInvalid = errors.New("imsg: invalid argument")

	// ErrRange reports that an operation would grow a buffer past its
	// ceiling, or address bytes outside the written region.
	ErrRange = errors.New("imsg: out of range")

	// ErrBadMessage reports a read of more bytes than remain unread.
	// This always indicates a framing bug on one side of the connection.
	ErrBadMessage = errors.New("imsg: bad message")

	// ErrAgain reports that the socket cannot accept (or has no) data
	// right now. Retry on the next readiness event.
	ErrAgain = errors.New("imsg: resource temporarily unavailable")

	// ErrClosed reports a zero-byte transfer: the peer has gone away.
	ErrClosed = errors.New("imsg: connection closed")
)

// mapErrno converts a raw syscall error into the package's transient
// error where one applies. ENOBUFS is folded into ErrAgain because the
// caller's remedy is identical: wait and retry.
func mapErrno(err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOBUFS) {
		return ErrAgain
	}
	return err
}
