// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import (
	"encoding/binary"
	"math"
)

// Buffer is a byte region with independent read and write cursors.
//
// Bytes in [rpos, wpos) are written but unread; Size reports their
// count. Writes append at wpos, reads consume from rpos, and
// rpos <= wpos <= len(data) holds at all times. Growth is bounded by
// max: a buffer never holds more than max bytes, and an operation that
// would exceed the ceiling fails with ErrRange without writing anything.
//
// A Buffer with max == 0 is a borrowed view (see FromBytes): it cannot
// grow, cannot carry a descriptor, and must never be freed or queued.
type Buffer struct {
	data []byte
	max  int
	rpos int
	wpos int
	fd   Descriptor
}

// Open returns a fixed-capacity buffer of n bytes. The ceiling equals
// the capacity, so the buffer never reallocates.
func Open(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, ErrInvalid
	}
	return &Buffer{
		data: make([]byte, n),
		max:  n,
		fd:   NewDescriptor(NoDescriptor),
	}, nil
}

// Dynamic returns a buffer with n bytes of initial capacity that grows
// on demand up to max bytes.
func Dynamic(n, max int) (*Buffer, error) {
	if n < 0 || max <= 0 || max < n {
		return nil, ErrInvalid
	}
	return &Buffer{
		data: make([]byte, n),
		max:  max,
		fd:   NewDescriptor(NoDescriptor),
	}, nil
}

// FromBytes returns a read-only view over data. The view aliases data,
// has a zero ceiling, and exists only for parsing with the Get family.
func FromBytes(data []byte) *Buffer {
	return &Buffer{
		data: data,
		wpos: len(data),
		fd:   NewDescriptor(NoDescriptor),
	}
}

// grow reallocates storage so that n more bytes fit after wpos. Fixed
// buffers have max == len(data), so any growth attempt on them lands
// here and fails.
func (b *Buffer) grow(n int) error {
	if n > math.MaxInt-b.wpos || b.wpos+n > b.max {
		return ErrRange
	}
	data := make([]byte, b.wpos+n)
	copy(data, b.data[:b.wpos])
	clear(b.data)
	b.data = data
	return nil
}

// Reserve advances the write cursor by n bytes and returns the region
// for the caller to fill. Storage grows if needed; exceeding the
// ceiling fails with ErrRange and leaves the buffer untouched.
func (b *Buffer) Reserve(n int) ([]byte, error) {
	if n < 0 || n > math.MaxInt-b.wpos || b.max == 0 {
		return nil, ErrRange
	}
	if b.wpos+n > len(b.data) {
		if err := b.grow(n); err != nil {
			return nil, err
		}
	}
	region := b.data[b.wpos : b.wpos+n]
	b.wpos += n
	return region, nil
}

// Add appends p.
func (b *Buffer) Add(p []byte) error {
	region, err := b.Reserve(len(p))
	if err != nil {
		return err
	}
	copy(region, p)
	return nil
}

// AddBuffer appends the unread bytes of from.
func (b *Buffer) AddBuffer(from *Buffer) error {
	return b.Add(from.Data())
}

// AddZero appends n zero bytes.
func (b *Buffer) AddZero(n int) error {
	region, err := b.Reserve(n)
	if err != nil {
		return err
	}
	clear(region)
	return nil
}

// AddN8 appends value as one byte. Values above 0xff fail with
// ErrInvalid.
func (b *Buffer) AddN8(value uint64) error {
	if value > math.MaxUint8 {
		return ErrInvalid
	}
	return b.Add([]byte{byte(value)})
}

// AddN16 appends value as a big-endian uint16.
func (b *Buffer) AddN16(value uint64) error {
	if value > math.MaxUint16 {
		return ErrInvalid
	}
	return b.Add(binary.BigEndian.AppendUint16(nil, uint16(value)))
}

// AddN32 appends value as a big-endian uint32.
func (b *Buffer) AddN32(value uint64) error {
	if value > math.MaxUint32 {
		return ErrInvalid
	}
	return b.Add(binary.BigEndian.AppendUint32(nil, uint32(value)))
}

// AddN64 appends value as a big-endian uint64.
func (b *Buffer) AddN64(value uint64) error {
	return b.Add(binary.BigEndian.AppendUint64(nil, value))
}

// AddH16 appends value as a host-order uint16.
func (b *Buffer) AddH16(value uint64) error {
	if value > math.MaxUint16 {
		return ErrInvalid
	}
	return b.Add(binary.NativeEndian.AppendUint16(nil, uint16(value)))
}

// AddH32 appends value as a host-order uint32.
func (b *Buffer) AddH32(value uint64) error {
	if value > math.MaxUint32 {
		return ErrInvalid
	}
	return b.Add(binary.NativeEndian.AppendUint32(nil, uint32(value)))
}

// AddH64 appends value as a host-order uint64.
func (b *Buffer) AddH64(value uint64) error {
	return b.Add(binary.NativeEndian.AppendUint64(nil, value))
}

// Seek returns the n written bytes starting pos bytes past the read
// cursor, for in-place modification. Only unread bytes are reachable.
func (b *Buffer) Seek(pos, n int) ([]byte, error) {
	if pos < 0 || n < 0 || b.Size() < pos || math.MaxInt-pos < n || b.Size() < pos+n {
		return nil, ErrRange
	}
	start := b.rpos + pos
	return b.data[start : start+n], nil
}

// Set overwrites already-written bytes at pos without moving either
// cursor.
func (b *Buffer) Set(pos int, p []byte) error {
	region, err := b.Seek(pos, len(p))
	if err != nil {
		return err
	}
	copy(region, p)
	return nil
}

// SetN8 overwrites one byte at pos.
func (b *Buffer) SetN8(pos int, value uint64) error {
	if value > math.MaxUint8 {
		return ErrInvalid
	}
	return b.Set(pos, []byte{byte(value)})
}

// SetN16 overwrites a big-endian uint16 at pos.
func (b *Buffer) SetN16(pos int, value uint64) error {
	if value > math.MaxUint16 {
		return ErrInvalid
	}
	return b.Set(pos, binary.BigEndian.AppendUint16(nil, uint16(value)))
}

// SetN32 overwrites a big-endian uint32 at pos.
func (b *Buffer) SetN32(pos int, value uint64) error {
	if value > math.MaxUint32 {
		return ErrInvalid
	}
	return b.Set(pos, binary.BigEndian.AppendUint32(nil, uint32(value)))
}

// SetN64 overwrites a big-endian uint64 at pos.
func (b *Buffer) SetN64(pos int, value uint64) error {
	return b.Set(pos, binary.BigEndian.AppendUint64(nil, value))
}

// SetH16 overwrites a host-order uint16 at pos.
func (b *Buffer) SetH16(pos int, value uint64) error {
	if value > math.MaxUint16 {
		return ErrInvalid
	}
	return b.Set(pos, binary.NativeEndian.AppendUint16(nil, uint16(value)))
}

// SetH32 overwrites a host-order uint32 at pos.
func (b *Buffer) SetH32(pos int, value uint64) error {
	if value > math.MaxUint32 {
		return ErrInvalid
	}
	return b.Set(pos, binary.NativeEndian.AppendUint32(nil, uint32(value)))
}

// SetH64 overwrites a host-order uint64 at pos.
func (b *Buffer) SetH64(pos int, value uint64) error {
	return b.Set(pos, binary.NativeEndian.AppendUint64(nil, value))
}

// Data returns the unread bytes. The slice aliases the buffer and is
// invalidated by the next growing write.
func (b *Buffer) Data() []byte {
	return b.data[b.rpos:b.wpos]
}

// Size returns the number of unread bytes.
func (b *Buffer) Size() int {
	return b.wpos - b.rpos
}

// Left returns how many more bytes can be written before the ceiling.
func (b *Buffer) Left() int {
	if b.max == 0 {
		return 0
	}
	return b.max - b.wpos
}

// Truncate sets the unread size to n, discarding bytes past it or
// zero-filling up to it. Views may only shrink.
func (b *Buffer) Truncate(n int) error {
	if n < 0 {
		return ErrRange
	}
	if b.Size() >= n {
		b.wpos = b.rpos + n
		return nil
	}
	if b.max == 0 {
		return ErrRange
	}
	return b.AddZero(n - b.Size())
}

// Rewind moves the read cursor back to the start of the buffer.
func (b *Buffer) Rewind() {
	b.rpos = 0
}

// Get copies len(p) unread bytes into p and consumes them. Fewer than
// len(p) remaining fails with ErrBadMessage and consumes nothing.
func (b *Buffer) Get(p []byte) error {
	if b.Size() < len(p) {
		return ErrBadMessage
	}
	copy(p, b.data[b.rpos:])
	b.rpos += len(p)
	return nil
}

// GetBuffer consumes n bytes and returns them as a view.
func (b *Buffer) GetBuffer(n int) (*Buffer, error) {
	if n < 0 || b.Size() < n {
		return nil, ErrBadMessage
	}
	view := FromBytes(b.data[b.rpos : b.rpos+n])
	b.rpos += n
	return view, nil
}

// GetN8 consumes one byte.
func (b *Buffer) GetN8() (uint8, error) {
	var v [1]byte
	if err := b.Get(v[:]); err != nil {
		return 0, err
	}
	return v[0], nil
}

// GetN16 consumes a big-endian uint16.
func (b *Buffer) GetN16() (uint16, error) {
	var v [2]byte
	if err := b.Get(v[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(v[:]), nil
}

// GetN32 consumes a big-endian uint32.
func (b *Buffer) GetN32() (uint32, error) {
	var v [4]byte
	if err := b.Get(v[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v[:]), nil
}

// GetN64 consumes a big-endian uint64.
func (b *Buffer) GetN64() (uint64, error) {
	var v [8]byte
	if err := b.Get(v[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v[:]), nil
}

// GetH16 consumes a host-order uint16.
func (b *Buffer) GetH16() (uint16, error) {
	var v [2]byte
	if err := b.Get(v[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint16(v[:]), nil
}

// GetH32 consumes a host-order uint32.
func (b *Buffer) GetH32() (uint32, error) {
	var v [4]byte
	if err := b.Get(v[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(v[:]), nil
}

// GetH64 consumes a host-order uint64.
func (b *Buffer) GetH64() (uint64, error) {
	var v [8]byte
	if err := b.Get(v[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(v[:]), nil
}

// Skip consumes n bytes without copying them.
func (b *Buffer) Skip(n int) error {
	if n < 0 || b.Size() < n {
		return ErrBadMessage
	}
	b.rpos += n
	return nil
}

// SetFD attaches fd, closing any descriptor already attached. The
// buffer owns fd from here on.
func (b *Buffer) SetFD(fd int) {
	if b.max == 0 {
		panic("imsg: descriptor attached to a borrowed buffer")
	}
	b.fd.Reset(fd)
}

// TakeFD moves the attached descriptor out of the buffer. The caller
// must close it. Returns NoDescriptor if none is attached.
func (b *Buffer) TakeFD() int {
	return b.fd.Take()
}

// HasFD reports whether a descriptor is attached.
func (b *Buffer) HasFD() bool {
	return b.fd.Valid()
}

// Free releases the buffer: any attached descriptor is closed and the
// storage is zeroed. Freeing a borrowed view is a programming error
// and panics. Free on a nil buffer is a no-op.
func (b *Buffer) Free() {
	if b == nil {
		return
	}
	if b.max == 0 {
		panic("imsg: free of a borrowed buffer")
	}
	b.fd.Close()
	clear(b.data)
	b.data = nil
	b.rpos, b.wpos = 0, 0
}
