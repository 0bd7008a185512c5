// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator runs the lifecycle of agent sessions.
//
// An [Orchestrator] creates a session directory, starts the agent in a
// tmux session with a notify socket bound to the session, waits for the
// ready handshake, and then accepts tasks one at a time. Each task is
// written to the session's prompt file and announced with a single-line
// instruction; the agent acknowledges it with the ack marker (or a
// notify ack), reports progress through notify, and finishes with a
// done or error event or the completed marker.
//
// State changes are persisted to status.json by the session's
// [session.Machine]. Every agent event is published to the session's
// broadcast topic before it changes any state, so an observer always
// sees the cause before the effect. A session that reaches COMPLETED or
// ERROR is torn down: its streams end with a final event, its tmux
// session is killed, and its activity log is archived. Its status stays
// readable from disk.
package orchestrator
