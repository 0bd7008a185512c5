// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Tmux-builder runs coding agents in tmux sessions and hands them
// work. "tmux-builder serve" is the orchestrator daemon; every other
// command is a client of its HTTP API.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/cocreateceo/tmux-builder-sub002/cmd/tmux-builder/commands"
	"github.com/cocreateceo/tmux-builder-sub002/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().Execute(ctx, os.Args[1:])
	stop()
	if err == nil {
		return
	}
	// Commands that print their own output return an ExitCoder with
	// the status to use. Don't add a redundant "error:" line.
	var coder process.ExitCoder
	if errors.As(err, &coder) {
		os.Exit(coder.ExitCode())
	}
	process.Fatal(err)
}
