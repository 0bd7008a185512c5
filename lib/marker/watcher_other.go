// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package marker

// NewWatcher returns a PollingWatcher on platforms without inotify.
func NewWatcher() Watcher { return PollingWatcher{} }
