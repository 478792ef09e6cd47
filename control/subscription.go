// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/muxwire/lib/clock"
)

// SubscriptionInterval is how often subscriptions are re-evaluated.
const SubscriptionInterval = time.Second

// ErrSubscriptionSyntax reports a refresh-client -B value with a name
// and scope but no format.
var ErrSubscriptionSyntax = errors.New("subscription: want name:what:format")

// Scope is what a subscription's format is evaluated against.
type Scope int

const (
	// ScopeSession evaluates once for the session.
	ScopeSession Scope = iota
	// ScopePane evaluates for one pane, once per index its window is
	// linked at.
	ScopePane
	// ScopeAllPanes evaluates for every pane in the session.
	ScopeAllPanes
	// ScopeWindow evaluates for one window, once per index.
	ScopeWindow
	// ScopeAllWindows evaluates for every window in the session.
	ScopeAllWindows
)

// paneTarget and windowTarget key the memoized values of pane- and
// window-scoped subscriptions.
type paneTarget struct {
	pane  uint32
	index int
}

type windowTarget struct {
	window uint32
	index  int
}

type subscription struct {
	name   string
	scope  Scope
	id     uint32
	format string

	// last is the session-scope value; valid once seen is set.
	last string
	seen bool

	panes   map[paneTarget]string
	windows map[windowTarget]string
}

// Subscription is a parsed refresh-client -B request.
type Subscription struct {
	Name   string
	Scope  Scope
	ID     uint32
	Format string

	// Remove is set when only a name was given.
	Remove bool
}

// ParseSubscription parses "name:what:format". what is %* (all panes),
// %N (pane N), @* (all windows), @N (window N); anything else means
// the session. A bare name asks for the subscription to be removed.
func ParseSubscription(value string) (Subscription, error) {
	name, rest, found := strings.Cut(value, ":")
	if !found {
		return Subscription{Name: name, Remove: true}, nil
	}
	what, format, found := strings.Cut(rest, ":")
	if !found {
		return Subscription{}, fmt.Errorf("%q: %w", value, ErrSubscriptionSyntax)
	}

	parsed := Subscription{Name: name, Scope: ScopeSession, Format: format}
	switch {
	case what == "%*":
		parsed.Scope = ScopeAllPanes
	case what == "@*":
		parsed.Scope = ScopeAllWindows
	case strings.HasPrefix(what, "%"):
		if id, err := strconv.ParseUint(what[1:], 10, 32); err == nil {
			parsed.Scope, parsed.ID = ScopePane, uint32(id)
		}
	case strings.HasPrefix(what, "@"):
		if id, err := strconv.ParseUint(what[1:], 10, 32); err == nil {
			parsed.Scope, parsed.ID = ScopeWindow, uint32(id)
		}
	}
	return parsed, nil
}

// ApplySubscription adds or removes a parsed subscription.
func (state *State) ApplySubscription(parsed Subscription) {
	if parsed.Remove {
		state.RemoveSubscription(parsed.Name)
		return
	}
	state.AddSubscription(parsed.Name, parsed.Scope, parsed.ID, parsed.Format)
}

// AddSubscription registers a subscription, replacing any with the same
// name, and starts the evaluation timer if it is not running.
func (state *State) AddSubscription(name string, scope Scope, id uint32, format string) {
	state.subscriptions[name] = &subscription{
		name:    name,
		scope:   scope,
		id:      id,
		format:  format,
		panes:   make(map[paneTarget]string),
		windows: make(map[windowTarget]string),
	}
	if state.subscriptionTimer == nil {
		state.armSubscriptionTimer()
	}
}

// RemoveSubscription drops a subscription by name. The timer stops
// when none remain.
func (state *State) RemoveSubscription(name string) {
	delete(state.subscriptions, name)
	if len(state.subscriptions) == 0 {
		state.stopSubscriptionTimer()
	}
}

// Subscriptions returns the names of active subscriptions, sorted.
func (state *State) Subscriptions() []string {
	names := make([]string, 0, len(state.subscriptions))
	for name := range state.subscriptions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (state *State) armSubscriptionTimer() {
	var timer *clock.Timer
	timer = state.clock.AfterFunc(SubscriptionInterval, func() {
		state.post(func() {
			// A stale firing after Stop or re-arm is ignored.
			if state.subscriptionTimer != timer {
				return
			}
			state.subscriptionTimer = nil
			state.armSubscriptionTimer()
			state.CheckSubscriptions()
		})
	})
	state.subscriptionTimer = timer
}

func (state *State) stopSubscriptionTimer() {
	if state.subscriptionTimer != nil {
		state.subscriptionTimer.Stop()
		state.subscriptionTimer = nil
	}
}

// CheckSubscriptions evaluates every subscription and writes
// %subscription-changed for each value that differs from the last one
// sent for the same target. Subscriptions are visited in name order.
func (state *State) CheckSubscriptions() {
	if state.session == nil {
		return
	}
	state.logger.Debug("checking subscriptions", "count", len(state.subscriptions))
	for _, name := range state.Subscriptions() {
		sub := state.subscriptions[name]
		switch sub.scope {
		case ScopeSession:
			state.checkSessionSubscription(sub)
		case ScopePane:
			state.checkPaneSubscription(sub)
		case ScopeAllPanes:
			state.checkAllPanesSubscription(sub)
		case ScopeWindow:
			state.checkWindowSubscription(sub)
		case ScopeAllWindows:
			state.checkAllWindowsSubscription(sub)
		}
	}
}

func (state *State) checkSessionSubscription(sub *subscription) {
	sessionID := state.session.ID()
	value := state.session.Expand(sub.format, Target{SessionID: sessionID})
	if sub.seen && value == sub.last {
		return
	}
	state.Writef("%%subscription-changed %s $%d - - - : %s", sub.name, sessionID, value)
	sub.last, sub.seen = value, true
}

// checkPaneValue writes a pane-scoped change if the value for this
// (pane, index) differs from the last one sent.
func (state *State) checkPaneValue(sub *subscription, winlink Winlink, pane WindowPane) {
	sessionID := state.session.ID()
	value := state.session.Expand(sub.format, Target{SessionID: sessionID, Winlink: &winlink, Pane: &pane})
	key := paneTarget{pane: pane.ID, index: winlink.Index}
	if last, ok := sub.panes[key]; ok && last == value {
		return
	}
	state.Writef("%%subscription-changed %s $%d @%d %d %%%d : %s",
		sub.name, sessionID, winlink.Window.ID, winlink.Index, pane.ID, value)
	sub.panes[key] = value
}

func (state *State) checkWindowValue(sub *subscription, winlink Winlink) {
	sessionID := state.session.ID()
	value := state.session.Expand(sub.format, Target{SessionID: sessionID, Winlink: &winlink})
	key := windowTarget{window: winlink.Window.ID, index: winlink.Index}
	if last, ok := sub.windows[key]; ok && last == value {
		return
	}
	state.Writef("%%subscription-changed %s $%d @%d %d - : %s",
		sub.name, sessionID, winlink.Window.ID, winlink.Index, value)
	sub.windows[key] = value
}

func (state *State) checkPaneSubscription(sub *subscription) {
	links, pane := findPane(state.session, sub.id)
	if pane == nil || pane.Dead {
		return
	}
	for _, winlink := range links {
		state.checkPaneValue(sub, winlink, *pane)
	}
}

func (state *State) checkAllPanesSubscription(sub *subscription) {
	for _, winlink := range state.session.Winlinks() {
		for _, pane := range winlink.Window.Panes {
			state.checkPaneValue(sub, winlink, pane)
		}
	}
}

func (state *State) checkWindowSubscription(sub *subscription) {
	for _, winlink := range findWindow(state.session, sub.id) {
		state.checkWindowValue(sub, winlink)
	}
}

func (state *State) checkAllWindowsSubscription(sub *subscription) {
	for _, winlink := range state.session.Winlinks() {
		state.checkWindowValue(sub, winlink)
	}
}
