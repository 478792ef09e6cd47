// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package imsg implements the framed byte buffers and per-socket output
// queues that carry muxwire's traffic between processes.
//
// The package has three layers:
//
//   - [Buffer]: one byte region with independent read and write cursors
//     and an optional attached file descriptor. Buffers are either
//     fixed ([Open]), growable up to a ceiling ([Dynamic]), or borrowed
//     views over caller memory ([FromBytes]). Views have a zero ceiling
//     and can never be freed, enqueued, or given a descriptor; doing so
//     is a programming error and panics.
//   - [Queue]: a FIFO of buffers bound to one socket. [Queue.Write]
//     issues a single vectored write of every queued buffer's unread
//     bytes and drains exactly what the kernel accepted.
//     [Queue.WriteWithFD] does the same through sendmsg so that at most
//     one descriptor rides along as SCM_RIGHTS ancillary data.
//   - [Channel]: imsg message framing on top of a Queue: a fixed
//     16-byte header (type, length, flags, peer id, pid) followed by the
//     payload, with descriptor passing on both the write and read side.
//
// Error values mirror the errno contract of the OpenBSD imsg library:
// [ErrInvalid] (EINVAL), [ErrRange] (ERANGE), [ErrBadMessage] (EBADMSG),
// [ErrAgain] (EAGAIN, including ENOBUFS) and [ErrClosed] for a zero-byte
// transfer. EINTR is always retried internally.
//
// Nothing in this package blocks. Sockets are expected to be
// non-blocking; callers wait for readiness through their own event loop
// and retry after [ErrAgain].
package imsg
