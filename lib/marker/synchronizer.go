// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package marker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/clock"
)

// Outcome is the result of a Wait.
type Outcome int

const (
	TimedOut Outcome = iota
	Found
)

func (o Outcome) String() string {
	if o == Found {
		return "found"
	}
	return "timed out"
}

// WaitOptions controls a single Wait.
type WaitOptions struct {
	// Timeout bounds the wait. Must be positive.
	Timeout time.Duration

	// PollInterval is the time between directory listings. Must be
	// positive.
	PollInterval time.Duration

	// SettleDelay is slept after an observation, before Wait returns.
	SettleDelay time.Duration

	// Signal, when non-nil, is an out-of-band acknowledgement: a
	// receive on it counts as observing the marker.
	Signal <-chan struct{}
}

// Synchronizer waits for marker files.
type Synchronizer struct {
	clock   clock.Clock
	watcher Watcher
	logger  *slog.Logger
}

// NewSynchronizer returns a Synchronizer. A nil watcher means polling
// only.
func NewSynchronizer(clk clock.Clock, watcher Watcher, logger *slog.Logger) *Synchronizer {
	if watcher == nil {
		watcher = PollingWatcher{}
	}
	return &Synchronizer{clock: clk, watcher: watcher, logger: logger}
}

// Wait blocks until the named marker exists in directory, the
// Signal fires, the timeout passes, or ctx is done. An observed marker
// is deleted before the settle delay starts. A missing directory is
// treated as "marker not there yet".
//
// The returned error is non-nil only for ctx cancellation or a
// directory that cannot be listed.
func (s *Synchronizer) Wait(ctx context.Context, directory string, name Name, options WaitOptions) (Outcome, error) {
	if options.Timeout <= 0 || options.PollInterval <= 0 {
		return TimedOut, fmt.Errorf("waiting for %s marker: timeout and poll interval must be positive", name)
	}
	fileName := name.FileName()

	wake, stop, err := s.watcher.Watch(directory, fileName)
	if err != nil {
		s.logger.Debug("marker notifications unavailable, polling only",
			"directory", directory, "error", err)
		wake, stop = nil, func() {}
	}
	defer stop()

	present, err := listed(directory, fileName)
	if err != nil {
		return TimedOut, err
	}
	if present {
		return s.observed(ctx, directory, name, options.SettleDelay), nil
	}

	deadline := s.clock.After(options.Timeout)
	ticker := s.clock.NewTicker(options.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		case <-options.Signal:
			return s.observed(ctx, directory, name, options.SettleDelay), nil
		case <-deadline:
			// A file created right at the deadline still counts.
			present, err := listed(directory, fileName)
			if err != nil || !present {
				return TimedOut, err
			}
			return s.observed(ctx, directory, name, options.SettleDelay), nil
		case <-ticker.C:
		case <-wake:
		}

		present, err := listed(directory, fileName)
		if err != nil {
			return TimedOut, err
		}
		if present {
			return s.observed(ctx, directory, name, options.SettleDelay), nil
		}
	}
}

// observed consumes the marker and sleeps the settle delay.
func (s *Synchronizer) observed(ctx context.Context, directory string, name Name, settle time.Duration) Outcome {
	if err := Delete(directory, name); err != nil {
		s.logger.Warn("could not consume marker", "marker", name, "directory", directory, "error", err)
	}
	s.logger.Debug("marker observed", "marker", name, "directory", directory)
	if settle > 0 {
		select {
		case <-ctx.Done():
		case <-s.clock.After(settle):
		}
	}
	return Found
}

// listed re-reads the directory and reports whether fileName is in it.
// Reading the whole directory, rather than stat-ing the file, forces
// filesystems with cached attributes to revalidate.
func listed(directory, fileName string) (bool, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("listing marker directory: %w", err)
	}
	for _, entry := range entries {
		if entry.Name() == fileName {
			return true, nil
		}
	}
	return false, nil
}
