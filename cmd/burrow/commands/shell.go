// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
	"github.com/burrow-net/burrow/forward"
)

func shellCommand() *cli.Command {
	var params PeerParams
	return &cli.Command{
		Name:    "shell",
		Summary: "Open an interactive shell on a peer",
		Description: `Start the peer's configured shell on a PTY sized like the local
terminal and attach this terminal to it. The local terminal is put in
raw mode for the duration of the session.`,
		Usage:  "burrow shell <peer> [flags]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{Description: "Open a shell on peer alpha", Command: "burrow shell alpha"},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("usage: burrow shell <peer>")
			}
			n, err := loadNode(&params.Common, logger)
			if err != nil {
				return err
			}
			peer, release, err := n.resolvePeer(ctx, args[0], &params)
			if err != nil {
				return err
			}
			defer release()

			terminal, err := openTerminal()
			if err != nil {
				return cli.Internal("%w", err)
			}
			defer terminal.restore()

			err = forward.Shell(ctx, forward.ShellSession{
				Peer:    peer,
				Input:   terminal.input,
				Output:  nopWriteCloser{os.Stdout},
				Columns: terminal.columns,
				Rows:    terminal.rows,
				Term:    os.Getenv("TERM"),
				Tunnel:  n.tunnelOptions(),
				Logger:  logger,
			})
			var rejected *forward.RejectedError
			if errors.As(err, &rejected) {
				return cli.Validation("%w", err)
			}
			return err
		},
	}
}

// localTerminal is stdin prepared for a shell session.
type localTerminal struct {
	// input is a non-blocking duplicate of stdin, so closing it
	// unblocks a pending Read when the session ends.
	input   *os.File
	columns uint16
	rows    uint16
	state   *term.State
}

func openTerminal() (*localTerminal, error) {
	fd := int(os.Stdin.Fd())
	duplicate, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("duplicating stdin: %w", err)
	}
	if err := unix.SetNonblock(duplicate, true); err != nil {
		unix.Close(duplicate)
		return nil, fmt.Errorf("setting stdin non-blocking: %w", err)
	}
	terminal := &localTerminal{input: os.NewFile(uintptr(duplicate), "stdin")}

	if term.IsTerminal(fd) {
		if columns, rows, err := term.GetSize(fd); err == nil {
			terminal.columns, terminal.rows = uint16(columns), uint16(rows)
		}
		state, err := term.MakeRaw(fd)
		if err != nil {
			terminal.input.Close()
			return nil, fmt.Errorf("entering raw mode: %w", err)
		}
		terminal.state = state
	}
	return terminal, nil
}

// restore leaves raw mode and returns stdin to blocking mode, which the
// duplicate shares.
func (t *localTerminal) restore() {
	fd := int(os.Stdin.Fd())
	if t.state != nil {
		term.Restore(fd, t.state)
	}
	unix.SetNonblock(fd, false)
	t.input.Close()
}

// nopWriteCloser keeps the session from closing the process's stdout.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
