// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Open allocates a PTY master/slave pair. Returns the master and the
// filesystem path to the slave.
func Open() (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	var ptyNumber int
	err = control(master, func(fd int) error {
		number, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
		if err != nil {
			return fmt.Errorf("get PTY number (TIOCGPTN): %w", err)
		}
		ptyNumber = number
		if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
			return fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", err)
		}
		return nil
	})
	if err != nil {
		master.Close()
		return nil, "", err
	}
	return master, fmt.Sprintf("/dev/pts/%d", ptyNumber), nil
}

// Start runs cmd on a new PTY of the given size and returns the master.
// cmd's standard streams must be unset; they are bound to the slave. The
// child becomes a session leader with the slave as its controlling
// terminal. Zero dimensions leave the kernel default.
func Start(cmd *exec.Cmd, columns, rows uint16) (*os.File, error) {
	if cmd.Stdin != nil || cmd.Stdout != nil || cmd.Stderr != nil {
		return nil, errors.New("pty: command standard streams are already set")
	}
	master, slavePath, err := Open()
	if err != nil {
		return nil, err
	}
	if columns > 0 && rows > 0 {
		if err := SetSize(master, columns, rows); err != nil {
			master.Close()
			return nil, err
		}
	}

	slave, err := os.OpenFile(slavePath, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("open PTY slave %s: %w", slavePath, err)
	}

	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = true
	cmd.SysProcAttr.Ctty = 0 // fd 0 in child = slave PTY

	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	// The child has its own copies via fd 0/1/2. Closing ours means the
	// master sees EIO as soon as the child exits.
	slave.Close()
	return master, nil
}

// SetSize sets the terminal dimensions. The kernel sends SIGWINCH to the
// foreground process group on the slave.
func SetSize(terminal *os.File, columns, rows uint16) error {
	return control(terminal, func(fd int) error {
		winsize := &unix.Winsize{Col: columns, Row: rows}
		if err := unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, winsize); err != nil {
			return fmt.Errorf("set window size (TIOCSWINSZ): %w", err)
		}
		return nil
	})
}

// Size returns the terminal dimensions.
func Size(terminal *os.File) (columns, rows uint16, err error) {
	err = control(terminal, func(fd int) error {
		winsize, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
		if err != nil {
			return fmt.Errorf("get window size (TIOCGWINSZ): %w", err)
		}
		columns, rows = winsize.Col, winsize.Row
		return nil
	})
	return columns, rows, err
}

// control runs fn with the file's descriptor without taking it out of
// non-blocking mode, which os.File.Fd would do.
func control(file *os.File, fn func(fd int) error) error {
	rawConn, err := file.SyscallConn()
	if err != nil {
		return err
	}
	var fnErr error
	if err := rawConn.Control(func(fd uintptr) { fnErr = fn(int(fd)) }); err != nil {
		return err
	}
	return fnErr
}

// IsNormalExit reports whether a wait error from a process running on a
// PTY represents ordinary termination: a zero exit status, or the
// SIGHUP/SIGTERM/SIGKILL delivered when its terminal or session is torn
// down.
func IsNormalExit(err error) bool {
	if err == nil {
		return true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 0 {
		return true
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return false
	}
	switch status.Signal() {
	case syscall.SIGHUP, syscall.SIGTERM, syscall.SIGKILL:
		return true
	}
	return false
}
