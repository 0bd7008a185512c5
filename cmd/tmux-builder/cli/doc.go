// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the tmux-builder CLI: a tree
// of [Command] values with pflag flag sets, structured help output,
// and "did you mean" suggestions for mistyped commands and flags.
package cli
