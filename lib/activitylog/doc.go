// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package activitylog persists a session's progress events as JSONL:
// one compact JSON object per line, appended and fsynced per event, so
// the log is the durable record that observer replay is built from.
//
// A log whose session has ended can be archived to "<path>.zst" with
// zstd. [Read] and [Tail] open the archive transparently when the
// plain file is gone. A final line cut short by a crash is skipped
// rather than failing the whole read.
package activitylog
