// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for muxwire packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. Unix domain sockets have a 108-byte path limit
// (sun_path in sockaddr_un), and t.TempDir() can exceed it. The
// directory is automatically removed when the test completes.
//
// [SocketPair] and [ReadAvailable] give imsg and control tests a real
// non-blocking kernel socket to write into and read back from, so that
// partial writes, EAGAIN and descriptor passing are exercised against
// the kernel rather than a fake.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. These are
// the only place in the test suite where real wall-clock timeouts are
// used.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no muxwire-internal dependencies.
package testutil
