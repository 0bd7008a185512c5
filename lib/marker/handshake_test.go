// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package marker_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/clock"
	"github.com/cocreateceo/tmux-builder-sub002/lib/marker"
	"github.com/cocreateceo/tmux-builder-sub002/lib/testutil"
)

type handshakeResult struct {
	attempts int
	err      error
}

// drive advances the fake clock in small steps whenever something is
// waiting on it, until done is closed.
func drive(fake *clock.FakeClock, done <-chan struct{}, step time.Duration) {
	for {
		select {
		case <-done:
			return
		default:
		}
		if fake.PendingCount() > 0 {
			fake.Advance(step)
		} else {
			runtime.Gosched()
		}
	}
}

func runHandshake(t *testing.T, fake *clock.FakeClock, directory string, options marker.HandshakeOptions, send marker.SendFunc) handshakeResult {
	t.Helper()
	s := newSynchronizer(fake)
	results := make(chan handshakeResult, 1)
	done := make(chan struct{})
	go func() {
		attempts, err := s.Handshake(context.Background(), directory, marker.Ack, options, send)
		results <- handshakeResult{attempts, err}
		close(done)
	}()
	go drive(fake, done, 100*time.Millisecond)
	return testutil.RequireReceive(t, results, 10*time.Second, "handshake result")
}

func TestHandshakeRemovesStaleMarkerBeforeSend(t *testing.T) {
	directory := t.TempDir()
	touch(t, directory, marker.Ack)

	var sends atomic.Int32
	result := runHandshake(t, clock.Fake(epoch), directory, marker.HandshakeOptions{
		Attempts: 3,
		Wait:     marker.WaitOptions{Timeout: time.Second, PollInterval: 100 * time.Millisecond},
	}, func(ctx context.Context, attempt int) error {
		sends.Add(1)
		if exists(marker.Path(directory, marker.Ack)) {
			t.Error("stale ack marker still present when the instruction was sent")
		}
		touch(t, directory, marker.Ack)
		return nil
	})

	if result.err != nil || result.attempts != 1 {
		t.Fatalf("Handshake = (%d, %v), want (1, nil)", result.attempts, result.err)
	}
	if sends.Load() != 1 {
		t.Fatalf("sent %d times, want 1", sends.Load())
	}
}

func TestHandshakeRetriesUntilAcknowledged(t *testing.T) {
	directory := t.TempDir()
	var sends atomic.Int32

	result := runHandshake(t, clock.Fake(epoch), directory, marker.HandshakeOptions{
		Attempts: 3,
		Backoff:  marker.Backoff{Base: time.Second},
		Wait:     marker.WaitOptions{Timeout: time.Second, PollInterval: 200 * time.Millisecond},
	}, func(ctx context.Context, attempt int) error {
		sends.Add(1)
		if attempt == 2 {
			touch(t, directory, marker.Ack)
		}
		return nil
	})

	if result.err != nil || result.attempts != 2 {
		t.Fatalf("Handshake = (%d, %v), want (2, nil)", result.attempts, result.err)
	}
	if sends.Load() != 2 {
		t.Fatalf("sent %d times, want 2", sends.Load())
	}
}

func TestHandshakeExhaustsAttempts(t *testing.T) {
	directory := t.TempDir()
	fake := clock.Fake(epoch)
	var sends atomic.Int32
	var sendTimes []time.Time

	result := runHandshake(t, fake, directory, marker.HandshakeOptions{
		Attempts: 3,
		Backoff:  marker.Backoff{Base: time.Second},
		Wait:     marker.WaitOptions{Timeout: time.Second, PollInterval: 200 * time.Millisecond},
	}, func(ctx context.Context, attempt int) error {
		sends.Add(1)
		sendTimes = append(sendTimes, fake.Now())
		return nil
	})

	var timeout *marker.TimeoutError
	if !errors.As(result.err, &timeout) {
		t.Fatalf("Handshake error = %v, want *TimeoutError", result.err)
	}
	if timeout.Marker != marker.Ack || timeout.Attempts != 3 {
		t.Errorf("TimeoutError = %+v, want ack after 3 attempts", timeout)
	}
	if !strings.Contains(timeout.Error(), "ack") {
		t.Errorf("error message %q does not name the marker", timeout.Error())
	}
	if sends.Load() != 3 {
		t.Fatalf("sent %d times, want 3", sends.Load())
	}

	// Three one-second waits plus backoffs of 1s and 2s.
	if elapsed := fake.Now().Sub(epoch); elapsed < 6*time.Second {
		t.Errorf("handshake gave up after %v of clock time, want at least 6s", elapsed)
	}
	// The second resend waits longer than the first.
	if len(sendTimes) == 3 {
		first := sendTimes[1].Sub(sendTimes[0])
		second := sendTimes[2].Sub(sendTimes[1])
		if second <= first {
			t.Errorf("resend gaps %v then %v, want increasing", first, second)
		}
	}
}

func TestHandshakeAcceptsSignalDuringBackoff(t *testing.T) {
	directory := t.TempDir()
	fake := clock.Fake(epoch)
	signal := make(chan struct{})
	// The first wait ends at 1s; the backoff runs until 2s.
	fake.AfterFunc(1200*time.Millisecond, func() { close(signal) })
	var sends atomic.Int32

	result := runHandshake(t, fake, directory, marker.HandshakeOptions{
		Attempts: 3,
		Backoff:  marker.Backoff{Base: time.Second},
		Wait: marker.WaitOptions{
			Timeout:      time.Second,
			PollInterval: 200 * time.Millisecond,
			Signal:       signal,
		},
	}, func(ctx context.Context, attempt int) error {
		sends.Add(1)
		return nil
	})

	if result.err != nil || result.attempts != 1 {
		t.Fatalf("Handshake = (%d, %v), want (1, nil)", result.attempts, result.err)
	}
	if sends.Load() != 1 {
		t.Fatalf("sent %d times, want 1: an acknowledged instruction was resent", sends.Load())
	}
}

func TestHandshakeAcceptsMarkerWrittenDuringBackoff(t *testing.T) {
	directory := t.TempDir()
	fake := clock.Fake(epoch)
	path := marker.Path(directory, marker.Ack)
	fake.AfterFunc(1500*time.Millisecond, func() { os.WriteFile(path, nil, 0o644) })
	var sends atomic.Int32

	result := runHandshake(t, fake, directory, marker.HandshakeOptions{
		Attempts: 3,
		Backoff:  marker.Backoff{Base: time.Second},
		Wait:     marker.WaitOptions{Timeout: time.Second, PollInterval: 200 * time.Millisecond},
	}, func(ctx context.Context, attempt int) error {
		sends.Add(1)
		return nil
	})

	if result.err != nil || result.attempts != 1 || sends.Load() != 1 {
		t.Fatalf("Handshake = (%d, %v) after %d sends, want (1, nil) after 1", result.attempts, result.err, sends.Load())
	}
	if exists(path) {
		t.Error("late marker was not consumed")
	}
}

func TestHandshakeSendFailureIsNotRetried(t *testing.T) {
	directory := t.TempDir()
	deliveryFailed := errors.New("pane gone")
	var sends atomic.Int32

	result := runHandshake(t, clock.Fake(epoch), directory, marker.HandshakeOptions{
		Attempts: 3,
		Backoff:  marker.Backoff{Base: time.Second},
		Wait:     marker.WaitOptions{Timeout: time.Second, PollInterval: 200 * time.Millisecond},
	}, func(ctx context.Context, attempt int) error {
		sends.Add(1)
		return deliveryFailed
	})

	if !errors.Is(result.err, deliveryFailed) {
		t.Fatalf("Handshake error = %v, want the send error", result.err)
	}
	if sends.Load() != 1 || result.attempts != 1 {
		t.Fatalf("sent %d times over %d attempts, want exactly 1", sends.Load(), result.attempts)
	}
}

func TestBackoffDelay(t *testing.T) {
	backoff := marker.Backoff{Base: 2 * time.Second, Max: 5 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
	}
	for _, test := range tests {
		if got := backoff.Delay(test.attempt); got != test.want {
			t.Errorf("Delay(%d) = %v, want %v", test.attempt, got, test.want)
		}
	}
	if got := (marker.Backoff{}).Delay(3); got != 0 {
		t.Errorf("zero Backoff Delay = %v, want 0", got)
	}
}
