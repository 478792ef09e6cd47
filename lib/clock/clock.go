// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations muxwire depends on: block
// timestamps for age-based admission and the subscription poll timer.
// Production code injects Real(); tests inject Fake() and move time
// with Advance.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t, measured against Now.
	Since(t time.Time) time.Duration

	// AfterFunc waits for duration d, then calls f. The returned Timer
	// cancels the pending call with Stop. Real clocks call f on its own
	// goroutine; fake clocks call it synchronously from Advance.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns true if the call stops
// the timer, false if the timer has already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
