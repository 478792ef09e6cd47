// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

// The build variables are package globals, so these tests do not run
// in parallel.

func setBuildInfo(t *testing.T, version, commit, dirty, buildTime string) {
	t.Helper()
	saved := []string{Version, GitCommit, GitDirty, BuildTime}
	t.Cleanup(func() {
		Version, GitCommit, GitDirty, BuildTime = saved[0], saved[1], saved[2], saved[3]
	})
	Version, GitCommit, GitDirty, BuildTime = version, commit, dirty, buildTime
}

func TestInfo(t *testing.T) {
	tests := []struct {
		name  string
		dirty string
		want  string
	}{
		{name: "clean", dirty: "false", want: "1.2.3 (abc1234, 2026-01-01T00:00:00Z)"},
		{name: "dirty", dirty: "true", want: "1.2.3 (abc1234-dirty, 2026-01-01T00:00:00Z)"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			setBuildInfo(t, "1.2.3", "abc1234", test.dirty, "2026-01-01T00:00:00Z")
			if got := Info(); got != test.want {
				t.Errorf("Info() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestPrint(t *testing.T) {
	setBuildInfo(t, "1.2.3", "abc1234", "false", "now")
	var out bytes.Buffer
	Print(&out, "muxwire-server")

	if !strings.HasPrefix(out.String(), "muxwire-server "+Info()+"\n") {
		t.Errorf("Print output does not start with the Info line: %q", out.String())
	}
	for _, want := range []string{runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Print output missing %q: %q", want, out.String())
		}
	}
}

func TestLogAttrs(t *testing.T) {
	setBuildInfo(t, "2.0.0", "def5678", "true", "now")
	got := map[string]string{}
	for _, attr := range LogAttrs() {
		got[attr.Key] = attr.Value.String()
	}
	if got["version"] != "2.0.0" || got["commit"] != "def5678" || got["dirty"] != "true" {
		t.Errorf("LogAttrs() = %v", got)
	}
}
