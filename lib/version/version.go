// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
)

// Build information, injected with -ldflags -X.
var (
	// GitCommit is the short git SHA muxwire was built from.
	GitCommit = "unknown"

	// GitDirty is "true" when the tree had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the release version, set by hand when tagging.
	Version = "0.1.0-dev"
)

// Info returns "version (commit[-dirty], build time)".
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Print writes the --version output of binary to w: the Info line,
// then the Go toolchain and platform it was built with.
func Print(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s\n  Go: %s\n  Platform: %s/%s\n",
		binary, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// LogAttrs returns the build information as log attributes, for the
// record a binary writes when it starts.
func LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("version", Version),
		slog.String("commit", GitCommit),
		slog.Bool("dirty", GitDirty == "true"),
		slog.String("go", runtime.Version()),
	}
}
