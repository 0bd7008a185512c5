// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock time so that the marker
// handshake, backoff schedule, and session timeouts can be driven
// deterministically in tests.
//
// Production code holds a Clock field and receives Real(). Tests
// construct Fake(epoch), start the goroutine under test, call
// WaitForTimers until the goroutine has registered its timer, and then
// Advance past the deadline:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go synchronizer.Wait(ctx, dir, "ack", options)
//	fake.WaitForTimers(2)
//	fake.Advance(30 * time.Second)
//
// WaitForTimers removes the race between "the goroutine registered a
// timer" and "the test moved time forward" without any real sleeping.
package clock
