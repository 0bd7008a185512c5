// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package marker

import (
	"context"
	"time"
)

// Backoff is a linear schedule: no delay before the first attempt,
// then Base, 2×Base, and so on, never more than Max (when Max > 0).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the pause before the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 || b.Base <= 0 {
		return 0
	}
	delay := b.Base * time.Duration(attempt-1)
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// HandshakeOptions configures Handshake.
type HandshakeOptions struct {
	Attempts int
	Backoff  Backoff
	Wait     WaitOptions
}

// SendFunc delivers (or redelivers) the instruction whose
// acknowledgement is the marker. attempt starts at 1.
type SendFunc func(ctx context.Context, attempt int) error

// Handshake runs the send-and-wait retry protocol and returns the
// number of attempts made. Each attempt deletes any stale marker,
// calls send, and waits. An error from send ends the handshake at
// once and is returned unchanged. When every attempt times out the
// error is a *TimeoutError.
//
// An acknowledgement of the previous send that arrives during a
// backoff (the marker, or the Signal) ends the handshake without
// resending.
func (s *Synchronizer) Handshake(ctx context.Context, directory string, name Name, options HandshakeOptions, send SendFunc) (int, error) {
	attempts := max(options.Attempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := options.Backoff.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-options.Wait.Signal:
			case <-s.clock.After(delay):
			}
		}
		if attempt > 1 {
			late, err := acknowledged(directory, name, options.Wait.Signal)
			if err != nil {
				return attempt - 1, err
			}
			if late {
				s.logger.Info("marker observed after its wait ended",
					"marker", name,
					"directory", directory,
					"attempt", attempt-1,
				)
				s.observed(ctx, directory, name, options.Wait.SettleDelay)
				return attempt - 1, nil
			}
		}

		if err := Delete(directory, name); err != nil {
			return attempt - 1, err
		}
		if err := send(ctx, attempt); err != nil {
			return attempt, err
		}

		outcome, err := s.Wait(ctx, directory, name, options.Wait)
		if err != nil {
			return attempt, err
		}
		if outcome == Found {
			return attempt, nil
		}
		s.logger.Warn("marker not observed",
			"marker", name,
			"directory", directory,
			"attempt", attempt,
			"max_attempts", attempts,
			"timeout", options.Wait.Timeout,
		)
	}

	return attempts, &TimeoutError{Marker: name, Attempts: attempts, Timeout: options.Wait.Timeout}
}

// acknowledged reports whether the marker is present or signal has
// fired, without blocking.
func acknowledged(directory string, name Name, signal <-chan struct{}) (bool, error) {
	select {
	case <-signal:
		return true, nil
	default:
	}
	return listed(directory, name.FileName())
}
