// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Fatal reports err on stderr, prefixed with the program name, and
// exits. The exit status is 1 unless err wraps an error with an
// ExitCode method. Call it from main() with the error run() returned;
// the structured logger may not exist yet.
func Fatal(err error) {
	os.Exit(report(os.Stderr, filepath.Base(os.Args[0]), err))
}

// report writes the Fatal message and returns the exit status.
func report(w io.Writer, program string, err error) int {
	fmt.Fprintf(w, "%s: %v\n", program, err)
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) && coder.ExitCode() > 0 {
		return coder.ExitCode()
	}
	return 1
}
