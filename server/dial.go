// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/muxwire/lib/imsg"
)

// Attachment is the client end of a control connection.
type Attachment struct {
	conn           *net.UnixConn
	raw            syscall.RawConn
	channel        *imsg.Channel
	controlControl bool

	// Send only touches the channel's queue and Wait only its receive
	// buffer, so the two may run concurrently. sendMutex serialises
	// Send; receiveMutex serialises Wait.
	sendMutex    sync.Mutex
	receiveMutex sync.Mutex
}

// Dial connects to the server at socketPath and identifies as a
// control client. Unless identify.ControlControl is set, output must
// be the file the server should write control output to; a duplicate
// of its descriptor is passed to the server.
func Dial(ctx context.Context, socketPath string, identify Identify, output *os.File) (*Attachment, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	unixConn := conn.(*net.UnixConn)
	raw, err := unixConn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, err
	}
	var fd int
	if err := raw.Control(func(descriptor uintptr) { fd = int(descriptor) }); err != nil {
		conn.Close()
		return nil, err
	}

	attachment := &Attachment{
		conn:           unixConn,
		raw:            raw,
		channel:        imsg.NewChannel(fd),
		controlControl: identify.ControlControl,
	}

	passed := imsg.NoDescriptor
	if !identify.ControlControl {
		if output == nil {
			conn.Close()
			return nil, fmt.Errorf("dial %s: no output file", socketPath)
		}
		passed, err = duplicate(output)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("duplicating output descriptor: %w", err)
		}
	}
	identify.Version = ProtocolVersion
	if err := attachment.channel.ComposeValue(MsgIdentify, 0, passed, identify); err != nil {
		conn.Close()
		return nil, err
	}
	if err := flush(raw, attachment.channel); err != nil {
		attachment.channel.Clear()
		conn.Close()
		return nil, fmt.Errorf("sending identify: %w", err)
	}
	return attachment, nil
}

// duplicate returns a close-on-exec copy of file's descriptor without
// changing its blocking mode, which File.Fd would.
func duplicate(file *os.File) (int, error) {
	raw, err := file.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	var dupErr error
	err = raw.Control(func(descriptor uintptr) {
		fd, dupErr = unix.FcntlInt(descriptor, unix.F_DUPFD_CLOEXEC, 0)
	})
	if err != nil {
		return -1, err
	}
	return fd, dupErr
}

// Send sends one command line. The empty line asks the server to
// disconnect the client.
func (attachment *Attachment) Send(line string) error {
	attachment.sendMutex.Lock()
	defer attachment.sendMutex.Unlock()
	if err := attachment.channel.ComposeValue(MsgCommand, 0, imsg.NoDescriptor, Command{Line: line}); err != nil {
		return err
	}
	return flush(attachment.raw, attachment.channel)
}

// Read reads control output from a control-control connection.
func (attachment *Attachment) Read(p []byte) (int, error) {
	return attachment.conn.Read(p)
}

// Wait blocks until the server sends MsgExit and returns its message.
// It is only meaningful when output goes to a passed descriptor; a
// control-control client reads until Read returns io.EOF instead.
func (attachment *Attachment) Wait() (string, error) {
	attachment.receiveMutex.Lock()
	defer attachment.receiveMutex.Unlock()
	for {
		message, err := receive(attachment.raw, attachment.channel)
		if err != nil {
			return "", err
		}
		if message.Header.Type != MsgExit {
			message.Free()
			continue
		}
		var exit Exit
		err = message.Decode(&exit)
		message.Free()
		return exit.Message, err
	}
}

// Close closes the connection.
func (attachment *Attachment) Close() error {
	return attachment.conn.Close()
}

// ControlControl reports whether control output comes back on the
// connection rather than through a passed descriptor.
func (attachment *Attachment) ControlControl() bool {
	return attachment.controlControl
}
