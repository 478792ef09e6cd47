// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IOVMax bounds how many buffers a single vectored write covers. Linux
// rejects larger iovec arrays with EINVAL.
const IOVMax = 1024

// Queue is a FIFO of buffers bound to one socket. Buffers are enqueued
// whole and leave the queue only once every byte has been accepted by
// the kernel; a partially sent buffer stays at the head with its read
// cursor advanced past the sent prefix.
//
// Queue is not safe for concurrent use. The owning event loop calls
// Write when the socket is writable and stops when it returns ErrAgain.
type Queue struct {
	fd      int
	buffers []*Buffer
}

// NewQueue returns an empty queue writing to fd. The queue does not own
// fd and never closes it.
func NewQueue(fd int) *Queue {
	return &Queue{fd: fd}
}

// FD returns the destination descriptor.
func (q *Queue) FD() int {
	return q.fd
}

// Enqueue appends b. The queue owns b from here on and frees it once
// fully sent. Enqueueing a borrowed view panics.
func (q *Queue) Enqueue(b *Buffer) {
	if b.max == 0 {
		panic("imsg: enqueue of a borrowed buffer")
	}
	q.buffers = append(q.buffers, b)
}

// Queued returns the number of buffers waiting to be sent.
func (q *Queue) Queued() int {
	return len(q.buffers)
}

// Len returns the number of unsent bytes across all queued buffers.
func (q *Queue) Len() int {
	total := 0
	for _, b := range q.buffers {
		total += b.Size()
	}
	return total
}

// Last returns the most recently enqueued buffer, or nil. Callers use
// it to coalesce small writes into the tail buffer.
func (q *Queue) Last() *Buffer {
	if len(q.buffers) == 0 {
		return nil
	}
	return q.buffers[len(q.buffers)-1]
}

// Clear frees every queued buffer, closing any attached descriptors.
func (q *Queue) Clear() {
	for _, b := range q.buffers {
		b.Free()
	}
	clear(q.buffers)
	q.buffers = q.buffers[:0]
}

// Write sends as many queued bytes as the socket accepts in one
// vectored write. Descriptors attached to queued buffers are ignored;
// use WriteWithFD on sockets that carry them.
//
// Returns ErrAgain when the socket is full (retry on the next
// writability event) and ErrClosed when the kernel accepted zero bytes.
// An empty queue is a successful no-op.
func (q *Queue) Write() error {
	if len(q.buffers) == 0 {
		return nil
	}
	count := min(len(q.buffers), IOVMax)
	iovecs := make([][]byte, 0, count)
	for _, b := range q.buffers[:count] {
		iovecs = append(iovecs, b.Data())
	}

	var n int
	var err error
	for {
		n, err = unix.Writev(q.fd, iovecs)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return mapErrno(err)
	}
	if n == 0 {
		return ErrClosed
	}
	q.drain(n)
	return nil
}

// WriteWithFD is Write through sendmsg, so that a descriptor attached
// to the head buffer travels as SCM_RIGHTS alongside its bytes. At most
// one descriptor is sent per call: the batch stops before any later
// buffer that carries one. The local copy of the sent descriptor is
// closed once the kernel has accepted it.
func (q *Queue) WriteWithFD() error {
	if len(q.buffers) == 0 {
		return nil
	}
	var iovecs [][]byte
	var passed *Buffer
	for i, b := range q.buffers {
		if i == IOVMax {
			break
		}
		if i > 0 && b.HasFD() {
			break
		}
		iovecs = append(iovecs, b.Data())
		if b.HasFD() {
			passed = b
		}
	}

	var oob []byte
	if passed != nil {
		oob = unix.UnixRights(passed.fd.FD())
	}

	var n int
	var err error
	for {
		n, err = unix.SendmsgBuffers(q.fd, iovecs, oob, nil, 0)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return mapErrno(err)
	}
	if n == 0 {
		return ErrClosed
	}

	// The kernel duplicated the descriptor into the message; ours is no
	// longer needed even if the buffer's bytes went out only partially.
	if passed != nil {
		passed.fd.Close()
	}
	q.drain(n)
	return nil
}

// drain retires n sent bytes from the head of the queue.
func (q *Queue) drain(n int) {
	sent := 0
	for sent < len(q.buffers) && n > 0 {
		b := q.buffers[sent]
		size := b.Size()
		if n < size {
			b.rpos += n
			break
		}
		n -= size
		b.Free()
		q.buffers[sent] = nil
		sent++
	}
	q.buffers = q.buffers[sent:]
}
