// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import "time"

const (
	// BufferLow is the output level at or below which the owner of an
	// Output calls WriteReady again.
	BufferLow = 512

	// BufferHigh is the output level at which the scheduler stops
	// feeding pane data for this round.
	BufferHigh = 8192

	// WriteMinimum is the smallest per-pane budget in one round.
	WriteMinimum = 32

	// MaximumAge is how old a queued block may get before a client
	// without pause-after is disconnected.
	MaximumAge = 300 * time.Second
)

// Decision is what the admission policy wants done with a pane whose
// oldest block has reached some age.
type Decision int

const (
	// Keep leaves the pane alone.
	Keep Decision = iota

	// Pause pauses the pane and discards its queued output.
	Pause

	// Disconnect drops the whole client as too far behind.
	Disconnect
)

func (decision Decision) String() string {
	switch decision {
	case Keep:
		return "keep"
	case Pause:
		return "pause"
	case Disconnect:
		return "disconnect"
	}
	return "unknown"
}

// Admission decides whether a client can keep up with a pane, given the
// age of the pane's oldest unsent block.
type Admission struct {
	// PauseAfter selects pausing over disconnecting.
	PauseAfter bool

	// PauseAge is the pause threshold when PauseAfter is set.
	PauseAge time.Duration

	// MaximumAge is the disconnect threshold otherwise.
	MaximumAge time.Duration
}

// admissionFor builds the policy for a client's current configuration.
func admissionFor(client Client) Admission {
	return Admission{
		PauseAfter: client.Flags()&FlagPauseAfter != 0,
		PauseAge:   client.PauseAge(),
		MaximumAge: MaximumAge,
	}
}

// Decide maps a block age to a decision. Ages of zero or less (a block
// queued this instant, or a clock that stepped backwards) always keep.
func (admission Admission) Decide(age time.Duration) Decision {
	if age <= 0 {
		return Keep
	}
	if admission.PauseAfter {
		if age < admission.PauseAge {
			return Keep
		}
		return Pause
	}
	if age < admission.MaximumAge {
		return Keep
	}
	return Disconnect
}

// Budget returns how many bytes each pending pane may contribute in one
// scheduling round, given space bytes left below BufferHigh. One third
// of an even share keeps a full round from overshooting the watermark.
func Budget(space, pending int) int {
	if pending <= 0 {
		return 0
	}
	return max(WriteMinimum, space/pending/3)
}
