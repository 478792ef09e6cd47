// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import "golang.org/x/sys/unix"

// NoDescriptor is the sentinel for "no descriptor attached".
const NoDescriptor = -1

// Descriptor owns at most one open file descriptor. Ownership moves out
// with Take, which clears the source; a Descriptor that still owns its
// descriptor closes it on Close.
//
// The zero value is not usable: construct with NewDescriptor so that
// "empty" is -1 rather than fd 0.
type Descriptor struct {
	fd int
}

// NewDescriptor takes ownership of fd. Pass NoDescriptor for an empty
// value.
func NewDescriptor(fd int) Descriptor {
	if fd < 0 {
		fd = NoDescriptor
	}
	return Descriptor{fd: fd}
}

// Valid reports whether the Descriptor currently owns a descriptor.
func (d *Descriptor) Valid() bool {
	return d.fd >= 0
}

// FD returns the owned descriptor without transferring ownership, or
// NoDescriptor.
func (d *Descriptor) FD() int {
	return d.fd
}

// Take moves the descriptor out, leaving d empty. The caller becomes
// responsible for closing the result.
func (d *Descriptor) Take() int {
	fd := d.fd
	d.fd = NoDescriptor
	return fd
}

// Reset closes any owned descriptor and takes ownership of fd.
func (d *Descriptor) Reset(fd int) {
	d.Close()
	*d = NewDescriptor(fd)
}

// Close closes the owned descriptor, if any. Safe to call repeatedly.
func (d *Descriptor) Close() error {
	if d.fd < 0 {
		return nil
	}
	fd := d.Take()
	return unix.Close(fd)
}
