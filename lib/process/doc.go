// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds what muxwire-server and muxwire-attach do at
// the edge of main(). [Fatal] reports the error run() returned, named
// after the binary, and exits with its status.
package process
