// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the Session model, its lifecycle state
// machine, the per-session directory layout, and the registry of live
// sessions.
//
// A Session moves CREATED → INITIALIZING → READY, alternates between
// READY and PROCESSING while instructions are dispatched, and ends in
// COMPLETED or ERROR. [Machine] enforces the transition table, stamps
// updated_at, and rewrites status.json atomically after every change,
// so an external reader never sees a half-written status. [Registry]
// is an ordinary object owned by whoever constructs it; there is no
// package-level session table.
package session
