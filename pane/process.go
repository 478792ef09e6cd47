// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Size is a terminal size in character cells.
type Size struct {
	Columns uint16
	Rows    uint16
}

// DefaultSize is used when no size is given.
var DefaultSize = Size{Columns: 80, Rows: 24}

// Process is a command running on a PTY whose output feeds a Pane.
type Process struct {
	pane   *Pane
	cmd    *exec.Cmd
	master *os.File

	// size is guarded by sizeMutex; Resize runs on client loops.
	sizeMutex sync.Mutex
	size      Size

	done chan struct{}
	err  error
}

// Spawn starts argv on a new PTY of the given size and copies its
// output into pane. The pane is closed when the command's output ends.
func Spawn(pane *Pane, argv []string, size Size) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("spawn: empty command")
	}
	master, slavePath, err := openPTY()
	if err != nil {
		return nil, fmt.Errorf("allocate PTY: %w", err)
	}
	if err := setWindowSize(master, size); err != nil {
		master.Close()
		return nil, fmt.Errorf("set PTY size: %w", err)
	}

	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("open PTY slave %s: %w", slavePath, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.Env = append(os.Environ(), "TERM=screen")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0,
	}
	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return nil, fmt.Errorf("start %q: %w", argv[0], err)
	}
	// The child has its own copies on fds 0-2.
	slave.Close()

	process := &Process{
		pane:   pane,
		cmd:    cmd,
		master: master,
		size:   size,
		done:   make(chan struct{}),
	}
	pane.logger.Info("pane started", "command", argv[0], "pid", cmd.Process.Pid)
	go process.copyOutput()
	return process, nil
}

// copyOutput reads the PTY master into the pane until the slave side
// closes, then reaps the command.
func (process *Process) copyOutput() {
	defer close(process.done)
	buffer := make([]byte, 4096)
	for {
		n, readErr := process.master.Read(buffer)
		if n > 0 {
			if _, err := process.pane.Write(buffer[:n]); err != nil {
				break
			}
		}
		if readErr != nil {
			// EIO is how the master reports that every slave
			// descriptor has closed.
			if !errors.Is(readErr, syscall.EIO) && !errors.Is(readErr, os.ErrClosed) {
				process.pane.logger.Warn("reading pane output", "error", readErr)
			}
			break
		}
	}
	process.pane.Close()
	process.master.Close()
	process.err = process.cmd.Wait()
	process.pane.logger.Info("pane exited", "status", exitStatus(process.err))
}

// Pane returns the pane the process writes to.
func (process *Process) Pane() *Pane {
	return process.pane
}

// PID returns the command's process id.
func (process *Process) PID() int {
	return process.cmd.Process.Pid
}

// Size returns the PTY size last applied.
func (process *Process) Size() Size {
	process.sizeMutex.Lock()
	defer process.sizeMutex.Unlock()
	return process.size
}

// Resize sets the PTY size, delivering SIGWINCH to the command.
func (process *Process) Resize(size Size) error {
	process.sizeMutex.Lock()
	defer process.sizeMutex.Unlock()
	if err := setWindowSize(process.master, size); err != nil {
		return err
	}
	process.size = size
	return nil
}

// Write sends p to the command as terminal input.
func (process *Process) Write(p []byte) (int, error) {
	return process.master.Write(p)
}

// Signal sends sig to the command.
func (process *Process) Signal(sig os.Signal) error {
	return process.cmd.Process.Signal(sig)
}

// Wait blocks until the command has exited and returns its status.
func (process *Process) Wait() error {
	<-process.done
	return process.err
}

// Done is closed once the command has exited.
func (process *Process) Done() <-chan struct{} {
	return process.done
}

// exitStatus renders a Wait error for logging.
func exitStatus(err error) string {
	if err == nil {
		return "exit 0"
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err.Error()
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return "signal " + status.Signal().String()
	}
	return fmt.Sprintf("exit %d", exitErr.ExitCode())
}

// openPTY allocates a PTY pair through /dev/ptmx and returns the master
// and the slave's path.
func openPTY() (*os.File, string, error) {
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}
	conn, err := master.SyscallConn()
	if err != nil {
		master.Close()
		return nil, "", err
	}

	var number int
	var ioctlErr error
	err = conn.Control(func(fd uintptr) {
		number, ioctlErr = unix.IoctlGetInt(int(fd), unix.TIOCGPTN)
		if ioctlErr != nil {
			ioctlErr = fmt.Errorf("get PTY number (TIOCGPTN): %w", ioctlErr)
			return
		}
		if ioctlErr = unix.IoctlSetPointerInt(int(fd), unix.TIOCSPTLCK, 0); ioctlErr != nil {
			ioctlErr = fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", ioctlErr)
		}
	})
	if err == nil {
		err = ioctlErr
	}
	if err != nil {
		master.Close()
		return nil, "", err
	}
	return master, fmt.Sprintf("/dev/pts/%d", number), nil
}

// setWindowSize applies size to the PTY with TIOCSWINSZ.
func setWindowSize(master *os.File, size Size) error {
	conn, err := master.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	err = conn.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetWinsize(int(fd), unix.TIOCSWINSZ, &unix.Winsize{Col: size.Columns, Row: size.Rows})
	})
	if err != nil {
		return err
	}
	return ioctlErr
}
