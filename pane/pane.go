// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/muxwire/control"
)

// ErrExited is returned by Write once the pane has been closed.
var ErrExited = errors.New("pane: exited")

// Pane holds one pane's output history and the control clients reading
// it. The producer (normally a Process reading a PTY) calls Write; each
// client reads through its own Consumer.
//
// Write blocks while every attached consumer is a full ring behind, so
// a pane whose clients have all stalled stops reading from its process
// instead of overwriting output nobody has seen. As long as one
// consumer keeps up, writes proceed and slower consumers lose the
// overwritten bytes.
type Pane struct {
	id     uint32
	ring   *Ring
	logger *slog.Logger

	mutex     sync.Mutex
	caughtUp  *sync.Cond
	consumers map[*Consumer]struct{}
	exited    bool
	done      chan struct{}
}

// New creates pane id with history bytes of ring capacity.
func New(id uint32, history int, logger *slog.Logger) *Pane {
	pane := &Pane{
		id:        id,
		ring:      NewRing(history),
		logger:    logger.With("pane", id),
		consumers: make(map[*Consumer]struct{}),
		done:      make(chan struct{}),
	}
	pane.caughtUp = sync.NewCond(&pane.mutex)
	return pane
}

// ID returns the pane id.
func (pane *Pane) ID() uint32 {
	return pane.id
}

// Offset returns the total bytes the pane has produced.
func (pane *Pane) Offset() uint64 {
	return pane.ring.Offset()
}

// Write appends p to the history and notifies every consumer. It
// blocks while all consumers are stalled and returns ErrExited after
// Close.
func (pane *Pane) Write(p []byte) (int, error) {
	pane.mutex.Lock()
	for !pane.exited && pane.stalledLocked() {
		pane.logger.Debug("pane stalled, waiting for consumers")
		pane.caughtUp.Wait()
	}
	if pane.exited {
		pane.mutex.Unlock()
		return 0, ErrExited
	}
	pane.ring.Write(p)
	consumers := pane.snapshotLocked()
	pane.mutex.Unlock()

	for _, consumer := range consumers {
		consumer.signal()
	}
	return len(p), nil
}

// stalledLocked reports whether there are consumers and none of them
// has room left in the ring. Caller holds the mutex.
func (pane *Pane) stalledLocked() bool {
	if len(pane.consumers) == 0 {
		return false
	}
	live := pane.ring.Offset()
	capacity := uint64(pane.ring.Capacity())
	for consumer := range pane.consumers {
		if live-consumer.consumed < capacity {
			return false
		}
	}
	return true
}

func (pane *Pane) snapshotLocked() []*Consumer {
	consumers := make([]*Consumer, 0, len(pane.consumers))
	for consumer := range pane.consumers {
		consumers = append(consumers, consumer)
	}
	return consumers
}

// Close marks the pane exited: pending and future writes fail and
// consumers are notified once more. Consumers stay attached so that
// output already produced can still be read.
func (pane *Pane) Close() {
	pane.mutex.Lock()
	if pane.exited {
		pane.mutex.Unlock()
		return
	}
	pane.exited = true
	close(pane.done)
	consumers := pane.snapshotLocked()
	pane.mutex.Unlock()

	pane.caughtUp.Broadcast()
	for _, consumer := range consumers {
		consumer.signal()
	}
}

// Exited reports whether Close has been called.
func (pane *Pane) Exited() bool {
	pane.mutex.Lock()
	defer pane.mutex.Unlock()
	return pane.exited
}

// Done is closed by Close.
func (pane *Pane) Done() <-chan struct{} {
	return pane.done
}

// Attach adds a consumer starting at the current offset. notify is
// called from the writing goroutine after new output arrives; it must
// not block. Calls are coalesced: after one, the next comes only once
// the consumer has been Rearmed.
func (pane *Pane) Attach(notify func()) *Consumer {
	pane.mutex.Lock()
	defer pane.mutex.Unlock()
	return pane.attachLocked(pane.ring.Offset(), notify)
}

// AttachFrom is Attach with the consumer starting at offset instead of
// the live offset. Output written before the call is not announced;
// the caller reads it without waiting for notify.
func (pane *Pane) AttachFrom(offset uint64, notify func()) *Consumer {
	pane.mutex.Lock()
	defer pane.mutex.Unlock()
	return pane.attachLocked(min(max(offset, pane.ring.Oldest()), pane.ring.Offset()), notify)
}

func (pane *Pane) attachLocked(start uint64, notify func()) *Consumer {
	consumer := &Consumer{
		pane:     pane,
		notify:   notify,
		consumed: start,
	}
	pane.consumers[consumer] = struct{}{}
	return consumer
}

// Consumers returns the number of attached consumers.
func (pane *Pane) Consumers() int {
	pane.mutex.Lock()
	defer pane.mutex.Unlock()
	return len(pane.consumers)
}

// Consumer is one control client's read position in a pane. It
// implements control.Pane.
type Consumer struct {
	pane   *Pane
	notify func()

	// signalled is set when notify has been called and not yet
	// acknowledged with Rearm.
	signalled atomic.Bool

	// consumed and detached are guarded by pane.mutex.
	consumed uint64
	detached bool
}

var _ control.Pane = (*Consumer)(nil)

func (consumer *Consumer) signal() {
	if consumer.signalled.CompareAndSwap(false, true) {
		consumer.notify()
	}
}

// Rearm allows the next write to notify again. Call it before reading
// the offset so that no write goes unannounced.
func (consumer *Consumer) Rearm() {
	consumer.signalled.Store(false)
}

// ID returns the pane id.
func (consumer *Consumer) ID() uint32 {
	return consumer.pane.id
}

// Alive reports whether the consumer is still attached.
func (consumer *Consumer) Alive() bool {
	consumer.pane.mutex.Lock()
	defer consumer.pane.mutex.Unlock()
	return !consumer.detached
}

// Offset returns the pane's live offset.
func (consumer *Consumer) Offset() control.Offset {
	return control.Offset(consumer.pane.ring.Offset())
}

// NewData returns up to limit bytes of pane output from offset from.
func (consumer *Consumer) NewData(from control.Offset, limit int) ([]byte, control.Offset) {
	data, start := consumer.pane.ring.Read(uint64(from), limit)
	return data, control.Offset(start)
}

// Consume records that the client is done with everything before to.
// A stalled writer resumes once this leaves room in the ring.
func (consumer *Consumer) Consume(to control.Offset) {
	consumer.pane.mutex.Lock()
	if uint64(to) <= consumer.consumed {
		consumer.pane.mutex.Unlock()
		return
	}
	consumer.consumed = uint64(to)
	consumer.pane.mutex.Unlock()
	consumer.pane.caughtUp.Broadcast()
}

// Consumed returns the consumer's position.
func (consumer *Consumer) Consumed() control.Offset {
	consumer.pane.mutex.Lock()
	defer consumer.pane.mutex.Unlock()
	return control.Offset(consumer.consumed)
}

// Detach removes the consumer. It stops holding the writer back and
// reports not alive from now on.
func (consumer *Consumer) Detach() {
	consumer.pane.mutex.Lock()
	consumer.detached = true
	delete(consumer.pane.consumers, consumer)
	consumer.pane.mutex.Unlock()
	consumer.pane.caughtUp.Broadcast()
}
