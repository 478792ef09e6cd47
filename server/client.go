// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/muxwire/control"
	"github.com/bureau-foundation/muxwire/lib/codec"
	"github.com/bureau-foundation/muxwire/lib/imsg"
	"github.com/bureau-foundation/muxwire/lib/netutil"
	"github.com/bureau-foundation/muxwire/pane"
)

// identifyTimeout bounds the wait for a new connection's Identify.
const identifyTimeout = 10 * time.Second

// client is one connected control client. Apart from name, cancel and
// post, every field is owned by the client's Loop goroutine.
type client struct {
	server *Server
	name   string
	logger *slog.Logger

	conn *net.UnixConn
	raw  syscall.RawConn
	// channel is read only by readCommands; the loop only queues
	// MsgExit on it.
	channel *imsg.Channel

	// output is the passed descriptor the client's output goes to, or
	// nil in control-control mode.
	output         *os.File
	controlControl bool

	loop   *control.Loop
	cancel context.CancelFunc
	sink   *control.Sink
	state  *control.State

	config    control.ClientConfig
	consumers map[uint32]*pane.Consumer
	commands  uint64

	exiting     bool
	exitMessage string
	// exitConfirmed is set by an empty line after %exit, for wait-exit.
	exitConfirmed bool
	finished      bool
}

var _ control.Client = (*client)(nil)

// Name returns the client's name.
func (c *client) Name() string {
	return c.name
}

// Flags returns the client's control flags.
func (c *client) Flags() control.ClientFlags {
	flags := c.config.Flags
	if c.controlControl {
		flags |= control.FlagControlControl
	}
	return flags
}

// PauseAge returns the pause-after age.
func (c *client) PauseAge() time.Duration {
	return c.config.PauseAge
}

// Exit starts disconnecting the client once its output has drained.
func (c *client) Exit(message string) {
	c.beginExit(message)
}

// post runs f on the client's loop. It is safe to call from any
// goroutine; f is dropped once the client has gone.
func (c *client) post(f func()) {
	c.loop.Post(f)
}

// handleConnection runs one client from its Identify to disconnect.
func (server *Server) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	c, err := server.identify(conn)
	if err != nil {
		if netutil.IsExpectedCloseError(err) {
			server.logger.Debug("client left before identifying", "error", err)
		} else {
			server.logger.Warn("rejecting client", "error", err)
		}
		return
	}
	if c.output != nil {
		defer c.output.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.cancel = cancel

	server.register(c)
	c.logger.Info("client attached", "flags", c.config.String(), "control_control", c.controlControl)

	c.post(c.attachPanes)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		c.readCommands()
	}()

	if err := c.loop.Run(ctx); err != nil {
		c.logger.Warn("client closed before draining", "error", err)
	}

	c.state.Stop()
	c.sink.Close()
	for _, consumer := range c.consumers {
		consumer.Detach()
	}
	// Closing the socket interrupts the command reader.
	conn.Close()
	<-readerDone
	server.unregister(c)
	server.clientDetached(c.name)
	c.logger.Info("client detached", "reason", c.exitMessage)
}

// identify reads the client's Identify and builds its client.
func (server *Server) identify(conn *net.UnixConn) (*client, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var fd int
	if err := raw.Control(func(descriptor uintptr) { fd = int(descriptor) }); err != nil {
		return nil, err
	}
	channel := imsg.NewChannel(fd)

	conn.SetReadDeadline(time.Now().Add(identifyTimeout))
	message, err := receive(raw, channel)
	if err != nil {
		return nil, fmt.Errorf("reading identify: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	defer message.Free()

	if message.Header.Type != MsgIdentify {
		return nil, fmt.Errorf("expected identify, got message type %d", message.Header.Type)
	}
	var identify Identify
	if err := message.Decode(&identify); err != nil {
		return nil, err
	}
	if identify.Version != ProtocolVersion {
		return nil, fmt.Errorf("protocol version %d, want %d", identify.Version, ProtocolVersion)
	}

	c := &client{
		server:         server,
		name:           "client-" + uuid.NewString(),
		conn:           conn,
		raw:            raw,
		channel:        channel,
		controlControl: identify.ControlControl,
		loop:           control.NewLoop(),
		consumers:      make(map[uint32]*pane.Consumer),
	}
	c.logger = server.logger.With("client", c.name)
	c.config.Apply(server.config.Flags)
	c.config.Apply(identify.Flags)

	outputConn := raw
	if !identify.ControlControl {
		passed := message.TakeFD()
		if passed < 0 {
			return nil, errors.New("identify carried no output descriptor")
		}
		if err := unix.SetNonblock(passed, true); err != nil {
			unix.Close(passed)
			return nil, fmt.Errorf("output descriptor: %w", err)
		}
		c.output = os.NewFile(uintptr(passed), c.name)
		outputConn, err = c.output.SyscallConn()
		if err != nil {
			c.output.Close()
			return nil, fmt.Errorf("output descriptor: %w", err)
		}
	}

	c.sink, err = control.NewSink(c.loop, outputConn, c.logger)
	if err != nil {
		if c.output != nil {
			c.output.Close()
		}
		return nil, err
	}
	c.state = control.NewState(c, c.sink,
		control.WithSession(server.session),
		control.WithClock(server.clock),
		control.WithLogger(server.logger),
		control.WithPost(func(f func()) { c.loop.Post(f) }),
	)
	c.sink.OnReady(c.state.WriteReady)
	c.sink.OnDrained(c.checkExit)
	c.sink.OnError(c.outputFailed)
	return c, nil
}

// readCommands receives command lines until the socket closes, posting
// each to the loop.
func (c *client) readCommands() {
	for {
		message, err := receive(c.raw, c.channel)
		if err != nil {
			c.post(func() { c.lost(err) })
			return
		}
		if message.Header.Type != MsgCommand {
			payload, _ := codec.Diagnose(message.Data())
			c.logger.Warn("ignoring unexpected message", "type", message.Header.Type, "payload", payload)
			message.Free()
			continue
		}
		var command Command
		err = message.Decode(&command)
		message.Free()
		if err != nil {
			c.post(func() { c.lost(err) })
			return
		}
		c.post(func() { c.command(command.Line) })
	}
}

// attachPanes starts reading every pane in the session.
func (c *client) attachPanes() {
	for _, w := range c.server.session.snapshot() {
		c.attach(w.pane)
	}
}

// attach starts reading p at its live offset.
func (c *client) attach(p *pane.Pane) {
	id := p.ID()
	if _, ok := c.consumers[id]; ok {
		return
	}
	c.consumers[id] = p.Attach(func() {
		c.post(func() { c.paneOutput(id) })
	})
}

// paneAdded attaches a pane created after the client connected. The
// pane is read from its first byte, so output its process produced
// before this task ran is sent too.
func (c *client) paneAdded(p *pane.Pane) {
	id := p.ID()
	if _, ok := c.consumers[id]; ok || c.exiting {
		return
	}
	c.consumers[id] = p.AttachFrom(0, func() {
		c.post(func() { c.paneOutput(id) })
	})
	c.state.NotifyWindowAdd(id, true)
	c.paneOutput(id)
}

// paneOutput hands a pane's new output to the scheduler.
func (c *client) paneOutput(id uint32) {
	consumer, ok := c.consumers[id]
	if !ok {
		return
	}
	consumer.Rearm()
	c.state.WriteOutput(consumer)
}

// command runs one line and writes its reply. An empty line asks to
// leave, or confirms the exit of a wait-exit client.
func (c *client) command(line string) {
	if line == "" {
		if c.exiting {
			c.exitConfirmed = true
			c.checkExit()
			return
		}
		c.beginExit("")
		return
	}
	if c.exiting {
		return
	}

	c.commands++
	number := c.commands
	c.logger.Debug("command", "line", line, "number", number)
	now := c.server.clock.Now().Unix()
	c.state.Writef("%%begin %d %d 1", now, number)
	lines, err := c.execute(line)
	for _, output := range lines {
		c.state.Write(output)
	}
	if err != nil {
		c.state.Write(err.Error())
		c.state.Writef("%%error %d %d 1", now, number)
		return
	}
	c.state.Writef("%%end %d %d 1", now, number)
}

// beginExit discards pending pane output, writes %exit and waits for
// the output to drain before finishing.
func (c *client) beginExit(message string) {
	if c.exiting {
		return
	}
	c.exiting = true
	c.exitMessage = message
	c.state.Discard()
	if message == "" {
		c.state.Write("%exit")
	} else {
		c.state.Writef("%%exit %s", message)
	}
	c.checkExit()
}

// checkExit finishes an exiting client once everything queued has been
// written.
func (c *client) checkExit() {
	if !c.exiting || c.finished || !c.state.AllDone() {
		return
	}
	if c.config.Flags&control.FlagWaitExit != 0 && !c.exitConfirmed {
		return
	}
	c.finish()
}

// finish sends MsgExit to a client with a passed output descriptor and
// stops the loop.
func (c *client) finish() {
	c.finished = true
	if !c.controlControl {
		err := c.channel.ComposeValue(MsgExit, 0, imsg.NoDescriptor, Exit{Message: c.exitMessage})
		if err == nil {
			err = c.channel.Flush()
		}
		if err != nil {
			c.logger.Debug("sending exit", "error", err)
		}
	}
	c.loop.Close()
}

// lost handles the command socket failing or closing.
func (c *client) lost(err error) {
	if c.finished {
		return
	}
	if netutil.IsExpectedCloseError(err) {
		c.logger.Debug("client disconnected", "error", err)
	} else {
		c.logger.Warn("reading client commands", "error", err)
	}
	if c.exitMessage == "" {
		c.exitMessage = "lost"
	}
	c.finished = true
	c.loop.Close()
}

// outputFailed handles a write to the client's output failing.
func (c *client) outputFailed(err error) {
	if c.finished {
		return
	}
	if netutil.IsExpectedCloseError(err) {
		c.logger.Debug("client output closed", "error", err)
	} else {
		c.logger.Warn("writing client output", "error", err)
	}
	c.exitMessage = "output failed"
	c.finished = true
	c.loop.Close()
}
