// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"container/list"
	"log/slog"

	"github.com/bureau-foundation/muxwire/lib/clock"
)

// controlStart begins the output stream of a control-control client.
const controlStart = "\x1bP1000p"

// State is the control-mode output state of one client: which panes it
// has seen and how far, the blocks waiting to be written, and its
// subscriptions.
//
// A State is owned by one goroutine (normally a Loop). None of its
// methods are safe for concurrent use and none of them block.
type State struct {
	client  Client
	output  Output
	session Session
	clock   clock.Clock
	logger  *slog.Logger
	post    func(func())

	// panes holds one entry for every pane this client has referenced.
	panes map[uint32]*controlPane

	// pending lists panes with queued blocks, in round-robin order.
	// Elements hold *controlPane.
	pending *list.List

	// allBlocks lists every queued block, data and literal, in
	// creation order. Elements hold *block.
	allBlocks *list.List

	subscriptions     map[string]*subscription
	subscriptionTimer *clock.Timer

	// discarded is set once the client has been dropped as too far
	// behind, or explicitly discarded. No more pane output is queued.
	discarded bool
}

// Option configures a State.
type Option func(*State)

// WithClock sets the clock used to stamp and age blocks and to drive
// the subscription timer. The default is clock.Real().
func WithClock(c clock.Clock) Option {
	return func(state *State) {
		state.clock = c
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(state *State) {
		state.logger = logger
	}
}

// WithSession attaches the session used for pane membership checks and
// subscription formats. Without one, every pane is considered part of
// the client's session and subscriptions report nothing.
func WithSession(session Session) Option {
	return func(state *State) {
		state.session = session
	}
}

// WithPost sets how timer callbacks get back onto the goroutine that
// owns the State. A Loop passes its Post method. The default runs the
// callback directly, which is only correct when timers fire on the
// owning goroutine (as with clock.Fake in tests).
func WithPost(post func(func())) Option {
	return func(state *State) {
		state.post = post
	}
}

// NewState starts control mode for client, writing to output. For a
// control-control client the DCS start sequence is written immediately.
func NewState(client Client, output Output, options ...Option) *State {
	state := &State{
		client:        client,
		output:        output,
		clock:         clock.Real(),
		logger:        slog.Default(),
		post:          func(f func()) { f() },
		panes:         make(map[uint32]*controlPane),
		pending:       list.New(),
		allBlocks:     list.New(),
		subscriptions: make(map[string]*subscription),
	}
	for _, option := range options {
		option(state)
	}
	state.logger = state.logger.With("client", client.Name())

	if client.Flags()&FlagControlControl != 0 {
		output.Write([]byte(controlStart))
		output.EnableWrite()
	}
	return state
}

// Client returns the client this State writes for.
func (state *State) Client() Client {
	return state.client
}

// PendingCount returns the number of panes with queued output.
func (state *State) PendingCount() int {
	return state.pending.Len()
}

// QueuedBlocks returns the number of blocks, data and literal, not yet
// written to the output.
func (state *State) QueuedBlocks() int {
	return state.allBlocks.Len()
}

// AllDone reports whether everything queued has been written and the
// output has drained.
func (state *State) AllDone() bool {
	return state.allBlocks.Len() == 0 && state.output.Len() == 0
}

// Discard drops every pane's queued output and stops queueing more.
// Queued literal lines are kept so that they still reach the client.
func (state *State) Discard() {
	for _, pane := range state.panes {
		state.discardPane(pane)
	}
	state.discarded = true
}

// Discarded reports whether Discard has run, either directly or because
// the client fell too far behind.
func (state *State) Discarded() bool {
	return state.discarded
}

// Stop releases everything the State holds: subscriptions and their
// timer, every queued block, and all pane tracking. The State must not
// be used afterwards.
func (state *State) Stop() {
	state.subscriptions = make(map[string]*subscription)
	state.stopSubscriptionTimer()

	for element := state.allBlocks.Front(); element != nil; element = element.Next() {
		element.Value.(*block).all = nil
	}
	state.allBlocks.Init()
	for _, pane := range state.panes {
		pane.blocks = nil
	}
	state.ResetOffsets()
	state.discarded = true
}
