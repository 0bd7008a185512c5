// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch hands tasks to an agent running in a terminal.
//
// The task body never travels through the terminal. It is written
// atomically to the session's prompt.txt, and the agent receives a
// single-line instruction that points at that file, states that it is
// pre-authorized to act, and tells it which marker files and notify
// command to use. The instruction is typed as literal text and
// committed with a separate Enter key press; acknowledgement is the
// ack marker (or an "ack" notify event), awaited with the marker
// handshake so that a lost keystroke is retried with backoff.
package dispatch
