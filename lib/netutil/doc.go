// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies socket errors. The server uses
// [IsExpectedCloseError] to log a client that simply went away at
// debug level and a real I/O failure as a warning.
package netutil
