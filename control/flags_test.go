// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"testing"
	"time"
)

func TestClientConfigApply(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		start     ClientConfig
		list      string
		wantFlags ClientFlags
		wantAge   time.Duration
	}{
		{name: "pause-after", list: "pause-after", wantFlags: FlagPauseAfter},
		{name: "pause-after seconds", list: "pause-after=5", wantFlags: FlagPauseAfter, wantAge: 5 * time.Second},
		{name: "several", list: "no-output,wait-exit", wantFlags: FlagNoOutput | FlagWaitExit},
		{
			name:      "negate",
			start:     ClientConfig{Flags: FlagNoOutput | FlagPauseAfter, PauseAge: time.Second},
			list:      "!no-output",
			wantFlags: FlagPauseAfter,
			wantAge:   time.Second,
		},
		{name: "unknown ignored", list: "read-only,no-output", wantFlags: FlagNoOutput},
		{name: "bad seconds ignored", list: "pause-after=soon", wantFlags: 0},
		{name: "empty", list: "", wantFlags: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			config := test.start
			config.Apply(test.list)
			if config.Flags != test.wantFlags {
				t.Errorf("flags: got %b, want %b", config.Flags, test.wantFlags)
			}
			if config.PauseAge != test.wantAge {
				t.Errorf("pause age: got %v, want %v", config.PauseAge, test.wantAge)
			}
		})
	}
}

func TestClientConfigStringRoundTrips(t *testing.T) {
	t.Parallel()
	for _, list := range []string{"", "pause-after", "pause-after=30,no-output", "no-output,wait-exit"} {
		var config ClientConfig
		config.Apply(list)
		if got := config.String(); got != list {
			t.Errorf("Apply(%q).String(): got %q", list, got)
		}
	}
}
