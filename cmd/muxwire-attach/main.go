// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// muxwire-attach attaches to a muxwire server as a control-mode client.
//
// Each line read from stdin is sent to the server as a command. Closing
// stdin (or an empty line) asks the server to disconnect the client.
// Positional arguments are sent as commands before stdin is read.
//
// By default the server writes control output straight to this
// process's stdout, passed over the socket. With --control-control the
// output comes back over the socket instead and is copied to stdout,
// followed by the ESC \ terminator when the server closes the stream.
// --decode prints the parsed events instead of the raw protocol.
//
// Usage:
//
//	muxwire-attach [-C] [--decode] [-f flags] [command ...]
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/muxwire/control"
	"github.com/bureau-foundation/muxwire/lib/config"
	"github.com/bureau-foundation/muxwire/lib/process"
	"github.com/bureau-foundation/muxwire/lib/version"
	"github.com/bureau-foundation/muxwire/server"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath     string
		socketPath     string
		flags          string
		controlControl bool
		decode         bool
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("muxwire-attach", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to muxwire.yaml (default: $MUXWIRE_CONFIG, then built-in defaults)")
	flagSet.StringVarP(&socketPath, "socket", "S", "", "server socket (overrides server.socket_path)")
	flagSet.StringVarP(&flags, "flags", "f", "", "control flags, for example pause-after=5,wait-exit")
	flagSet.BoolVarP(&controlControl, "control-control", "C", false, "receive output over the socket instead of on stdout")
	flagSet.BoolVar(&decode, "decode", false, "print decoded events (requires --control-control)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print(os.Stdout, "muxwire-attach")
		return nil
	}
	if decode && !controlControl {
		return errors.New("--decode requires --control-control")
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Server.SocketPath = socketPath
	}

	identify := server.Identify{Flags: flags, ControlControl: controlControl}
	var output *os.File
	if !controlControl {
		output = os.Stdout
	}
	attachment, err := server.Dial(context.Background(), cfg.Server.SocketPath, identify, output)
	if err != nil {
		return err
	}
	defer attachment.Close()

	for _, command := range flagSet.Args() {
		if err := attachment.Send(command); err != nil {
			return fmt.Errorf("sending %q: %w", command, err)
		}
	}
	go forwardCommands(attachment, os.Stdin)

	if !controlControl {
		message, err := attachment.Wait()
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if message != "" {
			fmt.Fprintf(os.Stderr, "[%s]\n", message)
		}
		return nil
	}

	if decode {
		err = printEvents(os.Stdout, control.NewReader(attachment))
	} else {
		_, err = io.Copy(os.Stdout, attachment)
	}
	fmt.Fprint(os.Stdout, "\x1b\\")
	return err
}

// forwardCommands sends each line of input as a command, then the
// empty line once input ends.
func forwardCommands(attachment *server.Attachment, input io.Reader) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if err := attachment.Send(scanner.Text()); err != nil {
			return
		}
	}
	attachment.Send("")
}

// printEvents writes one readable line per event until the stream ends.
func printEvents(w io.Writer, reader *control.Reader) error {
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch event.Kind {
		case control.EventOutput:
			if event.Age > 0 {
				fmt.Fprintf(w, "output %%%d (%s): %s\n", event.Pane, event.Age, strconv.Quote(string(event.Data)))
			} else {
				fmt.Fprintf(w, "output %%%d: %s\n", event.Pane, strconv.Quote(string(event.Data)))
			}
		case control.EventReply:
			status := "ok"
			if event.Reply.Failed {
				status = "error"
			}
			fmt.Fprintf(w, "reply %d %s\n", event.Reply.Number, status)
			for _, line := range event.Reply.Lines {
				fmt.Fprintf(w, "  %s\n", line)
			}
		case control.EventExit:
			fmt.Fprintf(w, "exit %s\n", strings.TrimSpace(event.Args))
		default:
			fmt.Fprintf(w, "%s %s\n", event.Name, event.Args)
		}
	}
}
