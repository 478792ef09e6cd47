// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"

	"github.com/bureau-foundation/muxwire/lib/imsg"
)

const (
	// sinkChunk is the initial capacity of a coalescing buffer.
	sinkChunk = 4096

	// sinkChunkMax is the ceiling of a coalescing buffer. Writes larger
	// than this get a buffer of their own.
	sinkChunkMax = 64 * 1024
)

// Sink is the Output of a client whose bytes go to a non-blocking
// descriptor. Writes are appended to an imsg.Queue; the queue drains
// whenever the descriptor is writable. Every method runs on the Loop
// goroutine.
//
// When the descriptor fills, a helper goroutine waits for writability
// through the runtime poller and posts the next drain back to the
// Loop, so the Loop itself never blocks.
type Sink struct {
	loop   *Loop
	conn   syscall.RawConn
	queue  *imsg.Queue
	logger *slog.Logger

	ready   func()
	drained func()
	failed  func(error)

	writeEnabled bool
	scheduled    bool
	waiting      bool
	err          error
}

// NewSink returns a Sink writing to conn. conn must be in non-blocking
// mode and must stay open until the Loop has stopped.
func NewSink(loop *Loop, conn syscall.RawConn, logger *slog.Logger) (*Sink, error) {
	fd := -1
	if err := conn.Control(func(raw uintptr) { fd = int(raw) }); err != nil {
		return nil, fmt.Errorf("sink descriptor: %w", err)
	}
	return &Sink{
		loop:   loop,
		conn:   conn,
		queue:  imsg.NewQueue(fd),
		logger: logger,
	}, nil
}

// OnReady sets the function called when write notification is enabled
// and the queue has drained to BufferLow: either it emptied, or the
// descriptor filled with at most BufferLow bytes left queued. It is
// normally State.WriteReady.
func (sink *Sink) OnReady(ready func()) {
	sink.ready = ready
}

// OnDrained sets a function called each time the queue empties.
func (sink *Sink) OnDrained(drained func()) {
	sink.drained = drained
}

// OnError sets the function called once when a write fails. The Sink
// discards everything queued and accepts no further writes.
func (sink *Sink) OnError(failed func(error)) {
	sink.failed = failed
}

// Len returns the bytes not yet accepted by the kernel.
func (sink *Sink) Len() int {
	return sink.queue.Len()
}

// Write queues p. It is appended to the tail buffer when that has room.
func (sink *Sink) Write(p []byte) {
	if sink.err != nil || len(p) == 0 {
		return
	}
	if tail := sink.queue.Last(); tail != nil && tail.Left() >= len(p) {
		if err := tail.Add(p); err == nil {
			return
		}
	}
	b, err := imsg.Dynamic(min(max(len(p), sinkChunk), sinkChunkMax), max(len(p), sinkChunkMax))
	if err == nil {
		err = b.Add(p)
	}
	if err != nil {
		sink.fail(fmt.Errorf("queueing %d bytes: %w", len(p), err))
		return
	}
	sink.queue.Enqueue(b)
}

// EnableWrite starts WriteReady calls and schedules a drain.
func (sink *Sink) EnableWrite() {
	sink.writeEnabled = true
	sink.schedule()
}

// DisableWrite stops WriteReady calls. Queued bytes are still drained.
func (sink *Sink) DisableWrite() {
	sink.writeEnabled = false
}

// Flush schedules a drain of whatever is queued.
func (sink *Sink) Flush() {
	sink.schedule()
}

// Err returns the error that stopped the Sink, if any.
func (sink *Sink) Err() error {
	return sink.err
}

// Close discards everything still queued.
func (sink *Sink) Close() {
	sink.queue.Clear()
	sink.writeEnabled = false
}

func (sink *Sink) schedule() {
	if sink.scheduled {
		return
	}
	sink.scheduled = true
	sink.loop.Post(sink.service)
}

// service drains the queue and refills it from WriteReady until the
// descriptor is full, the scheduler has nothing more, or a write fails.
// A descriptor that fills with no more than BufferLow still queued is
// refilled before parking, so the next wakeup has a full batch.
func (sink *Sink) service() {
	sink.scheduled = false
	for !sink.waiting && sink.err == nil {
		if err := sink.drain(); err != nil {
			sink.fail(err)
			return
		}
		if sink.waiting {
			if sink.queue.Len() <= BufferLow {
				sink.refill()
			}
			return
		}
		if sink.drained != nil {
			sink.drained()
		}
		if !sink.refill() || sink.queue.Len() == 0 {
			return
		}
	}
}

// refill calls the ready function if write notification is enabled.
func (sink *Sink) refill() bool {
	if !sink.writeEnabled || sink.ready == nil || sink.err != nil {
		return false
	}
	sink.ready()
	return true
}

// drain writes until the queue is empty or the descriptor is full.
func (sink *Sink) drain() error {
	for sink.queue.Len() > 0 {
		err := sink.queue.Write()
		if errors.Is(err, imsg.ErrAgain) {
			sink.waitWritable()
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// waitWritable parks a goroutine on the poller until the descriptor
// can take more data, then posts service back to the loop.
func (sink *Sink) waitWritable() {
	sink.waiting = true
	go func() {
		polled := false
		err := sink.conn.Write(func(uintptr) bool {
			if !polled {
				polled = true
				return false
			}
			return true
		})
		sink.loop.Post(func() {
			sink.waiting = false
			if err != nil {
				sink.fail(fmt.Errorf("waiting for writability: %w", err))
				return
			}
			sink.service()
		})
	}()
}

func (sink *Sink) fail(err error) {
	if sink.err != nil {
		return
	}
	sink.err = err
	sink.queue.Clear()
	sink.writeEnabled = false
	sink.logger.Debug("output failed", "error", err)
	if sink.failed != nil {
		sink.failed(err)
	}
}
