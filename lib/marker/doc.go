// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package marker implements the file-based handshake between the
// orchestrator and an agent running in a terminal.
//
// The agent signals a step by creating an empty file named
// "<name>.marker" in the session's markers directory. The orchestrator
// waits for the file with [Synchronizer.Wait], which polls the
// directory (refreshing the listing on every poll, since network and
// container filesystems can serve stale attribute caches) and wakes
// early on inotify events where available. A marker is consumed when it
// is observed: it is deleted before Wait returns, so one file can never
// satisfy two waits. After an observation Wait sleeps for a settle
// delay, giving the agent time to finish whatever it printed alongside
// the marker before the next instruction is typed.
//
// [Synchronizer.Handshake] wraps Wait in the retry protocol used for
// the ready and ack steps: remove any stale marker, send the
// instruction, wait, and on timeout back off linearly and resend, up to
// a fixed number of attempts. A failed send is never retried. Running
// out of attempts yields a single [TimeoutError].
package marker
