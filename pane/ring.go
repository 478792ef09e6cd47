// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import "sync"

// DefaultHistory is the default ring capacity in bytes. It bounds how
// far a control client may fall behind a pane before output is lost.
const DefaultHistory = 1024 * 1024

// Ring is a fixed-size circular buffer of pane output addressed by
// absolute byte offset. Offset 0 is the first byte the pane ever
// produced; the ring retains the most recent capacity bytes and older
// ones are overwritten.
//
// All methods are safe for concurrent use.
type Ring struct {
	mutex    sync.Mutex
	data     []byte
	capacity int
	// writePosition is where the next byte lands in data.
	writePosition int
	// total counts every byte ever written. The ring holds
	// [total - min(total, capacity), total).
	total uint64
}

// NewRing creates a ring holding capacity bytes.
func NewRing(capacity int) *Ring {
	return &Ring{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Capacity returns the ring size in bytes.
func (ring *Ring) Capacity() int {
	return ring.capacity
}

// Write appends p, overwriting the oldest bytes once the ring is full.
func (ring *Ring) Write(p []byte) {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()

	// Only the tail of an oversized write can survive.
	if len(p) > ring.capacity {
		ring.total += uint64(len(p) - ring.capacity)
		p = p[len(p)-ring.capacity:]
	}
	for written := 0; written < len(p); {
		n := copy(ring.data[ring.writePosition:], p[written:])
		ring.writePosition = (ring.writePosition + n) % ring.capacity
		written += n
	}
	ring.total += uint64(len(p))
}

// oldest returns the first offset still held. Caller holds the mutex.
func (ring *Ring) oldest() uint64 {
	return ring.total - min(ring.total, uint64(ring.capacity))
}

// ReadFrom returns a copy of the bytes from offset to the end of the
// ring, and the offset the returned bytes start at. If offset has been
// overwritten, start is later than offset and the bytes in between are
// gone. An offset at or past the end returns no data.
func (ring *Ring) ReadFrom(offset uint64) ([]byte, uint64) {
	return ring.Read(offset, ring.capacity)
}

// Read is ReadFrom returning at most limit bytes.
func (ring *Ring) Read(offset uint64, limit int) ([]byte, uint64) {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()

	start := max(offset, ring.oldest())
	if start >= ring.total || limit <= 0 {
		return nil, start
	}

	result := make([]byte, min(ring.total-start, uint64(limit)))
	// writePosition is where offset total would land, so walking back
	// (total - start) bytes from it finds start.
	readPosition := (ring.writePosition - int(ring.total-start)) % ring.capacity
	if readPosition < 0 {
		readPosition += ring.capacity
	}
	for copied := 0; copied < len(result); {
		n := copy(result[copied:], ring.data[readPosition:])
		readPosition = (readPosition + n) % ring.capacity
		copied += n
	}
	return result, start
}

// Offset returns the total number of bytes written.
func (ring *Ring) Offset() uint64 {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	return ring.total
}

// Oldest returns the earliest offset the ring still holds.
func (ring *Ring) Oldest() uint64 {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	return ring.oldest()
}
