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
	"sync"
	"syscall"
	"time"

	"github.com/bureau-foundation/muxwire/lib/clock"
	"github.com/bureau-foundation/muxwire/pane"
)

// shutdownTimeout is how long Serve waits, after its context is
// cancelled, for clients to drain their output and disconnect before
// closing them.
const shutdownTimeout = 5 * time.Second

// Config configures a Server.
type Config struct {
	// SocketPath is the unix socket Serve listens on.
	SocketPath string

	// SessionName names the session. Defaults to "0".
	SessionName string

	// History is each pane's ring size in bytes. Defaults to
	// pane.DefaultHistory.
	History int

	// Size is the PTY size of new panes. Defaults to pane.DefaultSize.
	Size pane.Size

	// Flags is the control flag list every client starts with, before
	// the flags it sends in Identify.
	Flags string

	// Command is run by new-window when no command is given.
	Command []string

	Logger *slog.Logger
	Clock  clock.Clock
}

// Server owns one session and serves control clients on a unix socket.
type Server struct {
	config  Config
	logger  *slog.Logger
	clock   clock.Clock
	session *Session

	mutex     sync.Mutex
	nextPane  uint32
	size      pane.Size
	processes []*pane.Process
	clients   map[*client]struct{}

	// activeConnections tracks connection handlers so that Serve can
	// wait for them on shutdown.
	activeConnections sync.WaitGroup
}

// New creates a server with an empty session.
func New(config Config) *Server {
	if config.SessionName == "" {
		config.SessionName = "0"
	}
	if config.History <= 0 {
		config.History = pane.DefaultHistory
	}
	if config.Size == (pane.Size{}) {
		config.Size = pane.DefaultSize
	}
	if len(config.Command) == 0 {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		config.Command = []string{shell}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	return &Server{
		config:  config,
		logger:  config.Logger,
		clock:   config.Clock,
		session: NewSession(0, config.SessionName),
		size:    config.Size,
		clients: make(map[*client]struct{}),
	}
}

// Session returns the server's session.
func (server *Server) Session() *Session {
	return server.session
}

// AddPane creates a pane with no process behind it and links it into
// the session. The caller produces its output with Write.
func (server *Server) AddPane(name string) *pane.Pane {
	p := server.newPane()
	server.link(name, p, nil)
	return p
}

// Spawn runs argv on a new PTY in a new window. An empty argv runs the
// configured default command.
func (server *Server) Spawn(argv []string) (*pane.Process, error) {
	if len(argv) == 0 {
		argv = server.config.Command
	}
	p := server.newPane()
	server.mutex.Lock()
	size := server.size
	server.mutex.Unlock()

	process, err := pane.Spawn(p, argv, size)
	if err != nil {
		return nil, err
	}
	server.mutex.Lock()
	server.processes = append(server.processes, process)
	server.mutex.Unlock()
	server.link(windowName(argv), p, process)
	return process, nil
}

func (server *Server) newPane() *pane.Pane {
	server.mutex.Lock()
	id := server.nextPane
	server.nextPane++
	server.mutex.Unlock()
	return pane.New(id, server.config.History, server.logger)
}

// link adds p to the session and to every connected client.
func (server *Server) link(name string, p *pane.Pane, process *pane.Process) {
	index := server.session.add(name, p, process)
	server.logger.Info("window added", "window", p.ID(), "index", index, "name", name)
	for _, c := range server.clientList() {
		c.post(func() { c.paneAdded(p) })
	}
}

// resize applies size to every running pane and to panes created later.
func (server *Server) resize(size pane.Size) {
	server.mutex.Lock()
	server.size = size
	processes := append([]*pane.Process(nil), server.processes...)
	server.mutex.Unlock()

	for _, process := range processes {
		if process.Pane().Exited() {
			continue
		}
		if err := process.Resize(size); err != nil {
			server.logger.Warn("resizing pane", "pane", process.Pane().ID(), "error", err)
		}
	}
}

func (server *Server) register(c *client) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	server.clients[c] = struct{}{}
}

func (server *Server) unregister(c *client) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	delete(server.clients, c)
}

// clientDetached tells the remaining clients that name has left.
func (server *Server) clientDetached(name string) {
	for _, c := range server.clientList() {
		c.post(func() {
			if !c.exiting {
				c.state.NotifyClientDetached(name)
			}
		})
	}
}

func (server *Server) clientList() []*client {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	clients := make([]*client, 0, len(server.clients))
	for c := range server.clients {
		clients = append(clients, c)
	}
	return clients
}

// Serve accepts control clients on the socket until ctx is cancelled.
// Clients are then told the server is exiting and given
// shutdownTimeout to drain before they are closed.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (server *Server) Serve(ctx context.Context) error {
	socketPath := server.config.SocketPath
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	server.logger.Info("server listening", "path", socketPath, "session", server.session.Name())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			server.logger.Error("accept failed", "error", err)
			continue
		}

		server.activeConnections.Add(1)
		go func() {
			defer server.activeConnections.Done()
			server.handleConnection(conn.(*net.UnixConn))
		}()
	}

	server.shutdownClients()
	return nil
}

// shutdownClients asks every client to exit and waits for the handlers,
// closing stragglers after shutdownTimeout.
func (server *Server) shutdownClients() {
	for _, c := range server.clientList() {
		c.post(func() { c.beginExit("server exited") })
	}

	finished := make(chan struct{})
	go func() {
		server.activeConnections.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return
	case <-time.After(shutdownTimeout):
	}
	for _, c := range server.clientList() {
		server.logger.Warn("client did not drain before shutdown", "client", c.name)
		c.cancel()
	}
	<-finished
}

// Close hangs up every running process and waits for them to exit.
func (server *Server) Close() {
	server.mutex.Lock()
	processes := append([]*pane.Process(nil), server.processes...)
	server.mutex.Unlock()

	for _, process := range processes {
		if process.Pane().Exited() {
			continue
		}
		if err := process.Signal(syscall.SIGHUP); err != nil {
			server.logger.Debug("hanging up pane", "pane", process.Pane().ID(), "error", err)
		}
	}
	for _, process := range processes {
		process.Wait()
	}
}
