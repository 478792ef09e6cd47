// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// muxwire-server runs a terminal session and serves control-mode
// clients on a unix socket.
//
// Each positional argument is a shell command run in its own window.
// With no arguments one window runs the configured default command.
//
// Usage:
//
//	muxwire-server [--config path] [--socket path] [command ...]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/muxwire/lib/clock"
	"github.com/bureau-foundation/muxwire/lib/config"
	"github.com/bureau-foundation/muxwire/lib/process"
	"github.com/bureau-foundation/muxwire/lib/version"
	"github.com/bureau-foundation/muxwire/pane"
	"github.com/bureau-foundation/muxwire/server"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		sessionName string
		flags       string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("muxwire-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to muxwire.yaml (default: $MUXWIRE_CONFIG, then built-in defaults)")
	flagSet.StringVarP(&socketPath, "socket", "S", "", "unix socket to listen on (overrides server.socket_path)")
	flagSet.StringVarP(&sessionName, "session", "s", "", "session name (overrides server.session_name)")
	flagSet.StringVar(&flags, "flags", "", "control flags every client starts with (overrides control.flags)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print(os.Stdout, "muxwire-server")
		return nil
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Server.SocketPath = socketPath
	}
	if sessionName != "" {
		cfg.Server.SessionName = sessionName
	}
	if flagSet.Changed("flags") {
		cfg.Control.Flags = flags
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	srv := server.New(server.Config{
		SocketPath:  cfg.Server.SocketPath,
		SessionName: cfg.Server.SessionName,
		History:     cfg.Server.History,
		Size:        pane.Size{Columns: uint16(cfg.Server.Columns), Rows: uint16(cfg.Server.Rows)},
		Flags:       cfg.Control.Flags,
		Command:     cfg.Command(),
		Logger:      logger,
		Clock:       clock.Real(),
	})
	defer srv.Close()

	commands := flagSet.Args()
	if len(commands) == 0 {
		if _, err := srv.Spawn(nil); err != nil {
			return fmt.Errorf("starting %s: %w", cfg.Server.DefaultCommand, err)
		}
	}
	for _, command := range commands {
		if _, err := srv.Spawn([]string{"/bin/sh", "-c", command}); err != nil {
			return fmt.Errorf("starting %q: %w", command, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.LogAttrs(ctx, slog.LevelInfo, "muxwire server starting", append(version.LogAttrs(),
		slog.String("socket", cfg.Server.SocketPath),
		slog.String("session", cfg.Server.SessionName),
		slog.String("environment", string(cfg.Environment)),
	)...)
	return srv.Serve(ctx)
}
