// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"sync"
)

// Loop runs posted tasks one at a time on a single goroutine. It is the
// owner of a client's State: pane readers, timers and socket pollers
// never touch the State themselves, they Post a task that does.
type Loop struct {
	mutex   sync.Mutex
	tasks   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// NewLoop creates a loop. Tasks are not run until Run is called.
func NewLoop() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Post queues task to run on the loop goroutine after every task posted
// before it. It never blocks. Returns false if the loop has been closed,
// in which case task is dropped.
func (loop *Loop) Post(task func()) bool {
	loop.mutex.Lock()
	if loop.closed {
		loop.mutex.Unlock()
		return false
	}
	loop.tasks = append(loop.tasks, task)
	loop.mutex.Unlock()

	select {
	case loop.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops accepting tasks. Tasks already posted still run; Run
// returns once they have.
func (loop *Loop) Close() {
	loop.mutex.Lock()
	loop.closed = true
	loop.mutex.Unlock()

	select {
	case loop.wake <- struct{}{}:
	default:
	}
}

// Run executes tasks until the loop is closed and drained, or ctx is
// cancelled. On cancellation, tasks still queued are dropped.
func (loop *Loop) Run(ctx context.Context) error {
	defer close(loop.stopped)
	for {
		loop.mutex.Lock()
		batch := loop.tasks
		loop.tasks = nil
		closed := loop.closed
		loop.mutex.Unlock()

		for _, task := range batch {
			if ctx.Err() != nil {
				loop.Close()
				return ctx.Err()
			}
			task()
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-loop.wake:
		case <-ctx.Done():
			loop.Close()
			return ctx.Err()
		}
	}
}

// Done is closed when Run has returned.
func (loop *Loop) Done() <-chan struct{} {
	return loop.stopped
}
