// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/muxwire/lib/codec"
)

const (
	// HeaderSize is the encoded size of a Header.
	HeaderSize = 16

	// MaxSize is the largest message, header included, that a Channel
	// will compose or accept.
	MaxSize = 16384

	// ReadSize is the capacity of a Channel's receive buffer. One Read
	// call never returns more than this many bytes.
	ReadSize = 65535

	// FlagHasFD marks a message that carried a descriptor.
	FlagHasFD = 1

	// maxPassedFDs bounds the SCM_RIGHTS control buffer for one recvmsg.
	maxPassedFDs = 8
)

// Header precedes every message on the wire, encoded in host byte
// order. Len counts the header itself.
type Header struct {
	Type   uint32
	Len    uint16
	Flags  uint16
	PeerID uint32
	PID    uint32
}

// Message is one received message. It owns its payload copy and, when
// the sender attached one, a descriptor that must be taken or released
// with Free.
type Message struct {
	Header Header
	data   []byte
	fd     Descriptor
}

// Data returns the payload bytes.
func (m *Message) Data() []byte {
	return m.data
}

// Len returns the payload length.
func (m *Message) Len() int {
	return len(m.data)
}

// Buffer returns a read-only view over the payload for parsing with
// the Get family.
func (m *Message) Buffer() *Buffer {
	return FromBytes(m.data)
}

// TakeFD moves the received descriptor out of the message. Returns
// NoDescriptor if none was attached.
func (m *Message) TakeFD() int {
	return m.fd.Take()
}

// Decode unmarshals a CBOR payload composed with ComposeValue.
func (m *Message) Decode(v any) error {
	if err := codec.Unmarshal(m.data, v); err != nil {
		return fmt.Errorf("decoding message type %d: %w", m.Header.Type, err)
	}
	return nil
}

// Free closes a descriptor that was never taken.
func (m *Message) Free() {
	m.fd.Close()
}

// Channel frames messages over one connected unix socket. Outgoing
// messages are built in Buffers and queued on a Queue; incoming bytes
// and passed descriptors accumulate until Get can extract a complete
// message.
//
// Channel does not own the socket. Like Queue, it is not safe for
// concurrent use and never blocks.
type Channel struct {
	fd    int
	pid   uint32
	queue *Queue

	// received holds bytes read but not yet returned by Get.
	received []byte
	// fds holds passed descriptors in arrival order. Each is claimed by
	// the next message carrying FlagHasFD.
	fds []int
}

// NewChannel returns a Channel on the socket fd.
func NewChannel(fd int) *Channel {
	return &Channel{
		fd:       fd,
		pid:      uint32(os.Getpid()),
		queue:    NewQueue(fd),
		received: make([]byte, 0, ReadSize),
	}
}

// Queue returns the outgoing queue.
func (c *Channel) Queue() *Queue {
	return c.queue
}

// Create starts a message with room for size payload bytes. The header
// is written with a provisional length; Close fixes it up and queues the
// buffer. A pid of zero stands for the calling process.
func (c *Channel) Create(messageType, peerID, pid uint32, size int) (*Buffer, error) {
	if size < 0 || size > MaxSize-HeaderSize {
		return nil, ErrRange
	}
	if pid == 0 {
		pid = c.pid
	}
	b, err := Dynamic(HeaderSize+size, MaxSize)
	if err != nil {
		return nil, err
	}
	err = errors.Join(
		b.AddH32(uint64(messageType)),
		b.AddH16(0), // length, set by Close
		b.AddH16(0), // flags, set by Close
		b.AddH32(uint64(peerID)),
		b.AddH32(uint64(pid)),
	)
	if err != nil {
		b.Free()
		return nil, err
	}
	return b, nil
}

// Close finalizes a buffer from Create: it records the total length
// and the descriptor flag in the header, then queues the buffer.
func (c *Channel) Close(b *Buffer) error {
	if err := b.SetH16(4, uint64(b.Size())); err != nil {
		return err
	}
	var flags uint64
	if b.HasFD() {
		flags |= FlagHasFD
	}
	if err := b.SetH16(6, flags); err != nil {
		return err
	}
	c.queue.Enqueue(b)
	return nil
}

// Compose queues one message. If fd is not NoDescriptor the message
// carries it and the Channel takes ownership.
func (c *Channel) Compose(messageType, peerID, pid uint32, fd int, data []byte) error {
	b, err := c.Create(messageType, peerID, pid, len(data))
	if err != nil {
		if fd >= 0 {
			unix.Close(fd)
		}
		return err
	}
	if err := b.Add(data); err != nil {
		b.Free()
		if fd >= 0 {
			unix.Close(fd)
		}
		return err
	}
	if fd >= 0 {
		b.SetFD(fd)
	}
	return c.Close(b)
}

// ComposeValue queues a message whose payload is v encoded as CBOR.
func (c *Channel) ComposeValue(messageType, peerID uint32, fd int, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		if fd >= 0 {
			unix.Close(fd)
		}
		return fmt.Errorf("encoding message type %d: %w", messageType, err)
	}
	return c.Compose(messageType, peerID, 0, fd, data)
}

// Flush writes queued messages until the queue is empty. Returns
// ErrAgain if the socket filled first.
func (c *Channel) Flush() error {
	for c.queue.Queued() > 0 {
		if err := c.queue.WriteWithFD(); err != nil {
			return err
		}
	}
	return nil
}

// Read performs one recvmsg, appending the bytes to the receive buffer
// and collecting any passed descriptors. Returns the number of bytes
// read; ErrClosed when the peer has shut down; ErrAgain when nothing is
// available; ErrRange when the receive buffer is full and Get must be
// called first.
func (c *Channel) Read() (int, error) {
	room := cap(c.received) - len(c.received)
	if room == 0 {
		return 0, ErrRange
	}
	p := c.received[len(c.received):cap(c.received)]
	oob := make([]byte, unix.CmsgSpace(4*maxPassedFDs))

	var n, oobn int
	var err error
	for {
		n, oobn, _, _, err = unix.Recvmsg(c.fd, p, oob, unix.MSG_CMSG_CLOEXEC)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return 0, mapErrno(err)
	}

	if oobn > 0 {
		messages, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return 0, fmt.Errorf("parsing control message: %w", err)
		}
		for i := range messages {
			fds, err := unix.ParseUnixRights(&messages[i])
			if err != nil {
				continue
			}
			c.fds = append(c.fds, fds...)
		}
	}

	if n == 0 {
		return 0, ErrClosed
	}
	c.received = c.received[:len(c.received)+n]
	return n, nil
}

// Get extracts the next complete message. It returns (nil, nil) when
// the receive buffer holds only part of one, and ErrRange when the
// header announces an impossible length.
func (c *Channel) Get() (*Message, error) {
	if len(c.received) < HeaderSize {
		return nil, nil
	}
	view := FromBytes(c.received[:HeaderSize])
	var header Header
	header.Type, _ = view.GetH32()
	header.Len, _ = view.GetH16()
	header.Flags, _ = view.GetH16()
	header.PeerID, _ = view.GetH32()
	header.PID, _ = view.GetH32()

	if header.Len < HeaderSize || int(header.Len) > MaxSize {
		return nil, ErrRange
	}
	if int(header.Len) > len(c.received) {
		return nil, nil
	}

	message := &Message{
		Header: header,
		data:   append([]byte(nil), c.received[HeaderSize:header.Len]...),
		fd:     NewDescriptor(NoDescriptor),
	}
	if header.Flags&FlagHasFD != 0 && len(c.fds) > 0 {
		message.fd = NewDescriptor(c.fds[0])
		c.fds = c.fds[1:]
	}

	remaining := copy(c.received, c.received[header.Len:])
	c.received = c.received[:remaining]
	return message, nil
}

// Clear discards queued output, buffered input, and unclaimed
// descriptors.
func (c *Channel) Clear() {
	c.queue.Clear()
	c.received = c.received[:0]
	for _, fd := range c.fds {
		unix.Close(fd)
	}
	c.fds = nil
}
