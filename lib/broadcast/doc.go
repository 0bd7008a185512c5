// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package broadcast fans a session's progress events out to any
// number of observers.
//
// Each session is a topic. [Broadcaster.Publish] numbers the event,
// appends it to the durable activity log, remembers it in a ring of the
// most recent events, and offers it to every subscriber's bounded
// queue without blocking. A subscriber that cannot keep up is either
// disconnected or loses its oldest queued event, depending on the
// [OverflowPolicy]; either way no other subscriber and no publisher is
// slowed down.
//
// [Broadcaster.Subscribe] registers the new subscriber and copies the
// ring into its queue under the topic lock, so the replayed history and
// the live events that follow form one gap-free, duplicate-free
// sequence.
//
// Topics are opened when a session starts and closed when it reaches a
// terminal state, at which point a final event is published and every
// subscription ends. Subscribing to a session without an open topic
// replays its logged history and then ends immediately.
package broadcast
