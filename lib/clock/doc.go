// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// The control scheduler stamps every queued block with Now and compares
// block ages against pause and disconnect thresholds; subscriptions are
// re-evaluated from a one-second AfterFunc timer. Both accept a Clock
// so that tests can drive ages and timer expiry deterministically.
//
// # Wiring Pattern
//
// Accept a Clock through a functional option and default to Real:
//
//	state := control.NewState(client, output, control.WithClock(clock.Real()))
//
// In tests:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	state := control.NewState(client, output, control.WithClock(fake))
//	state.WriteOutput(pane)
//	fake.Advance(301 * time.Second) // the queued block is now too old
//
// # FakeClock Synchronization
//
// AfterFunc callbacks on a FakeClock run synchronously inside Advance,
// in deadline order. When a goroutine other than the test registers a
// timer, use WaitForTimers to block until it has done so before
// calling Advance.
package clock
