// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the binaries. Fatal
// is the one place a binary writes an error to stderr without going
// through its logger, for failures that happen before the logger
// exists or after it can no longer help.
package process
