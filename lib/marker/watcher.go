// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package marker

// Watcher delivers best-effort wakeups when a file may have appeared
// in a directory. Wakeups only shorten the wait; the Synchronizer
// always confirms with a directory listing and keeps polling whether
// or not a Watcher fires.
type Watcher interface {
	// Watch starts watching directory for fileName being created or
	// renamed into place. The channel receives a value (non-blocking,
	// capacity 1) for each matching event. stop releases the watch and
	// may be called more than once. A nil channel means no
	// notifications are available.
	Watch(directory, fileName string) (wake <-chan struct{}, stop func(), err error)
}

// PollingWatcher never delivers notifications, leaving the
// Synchronizer to its poll interval.
type PollingWatcher struct{}

// Watch returns a nil channel.
func (PollingWatcher) Watch(string, string) (<-chan struct{}, func(), error) {
	return nil, func() {}, nil
}
