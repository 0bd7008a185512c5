// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger returns the logger handed to every command. When
// stderr is a terminal it writes slog's text format; when stderr is
// piped or redirected it writes JSON, matching the daemon's log
// format. TMUX_BUILDER_DEBUG=1 lowers the level to debug.
func NewCommandLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv("TMUX_BUILDER_DEBUG") == "1" {
		options.Level = slog.LevelDebug
	}
	if IsTerminal(os.Stderr) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
