// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/bureau-foundation/muxwire/lib/imsg"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, a closed connection, a zero-byte imsg transfer, a
// broken pipe, or a connection reset. Clients disconnect without
// warning, so the server's in-flight reads and writes on their socket
// fail this way routinely and should not be logged as errors.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, imsg.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
