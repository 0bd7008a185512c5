// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

// Subscription is one observer's view of a session's events.
type Subscription struct {
	id        uint64
	sessionID string
	topic     *topic
	queue     chan progress.Event
	dropped   atomic.Uint64

	// ended and reason are written under the topic lock (or before the
	// subscription is shared) and read under reasonMutex.
	ended       bool
	reasonMutex sync.Mutex
	reason      error
}

func newSubscription(id uint64, sessionID string, t *topic, capacity int) *Subscription {
	return &Subscription{
		id:        id,
		sessionID: sessionID,
		topic:     t,
		queue:     make(chan progress.Event, max(capacity, 1)),
	}
}

// ID identifies the subscription within the process.
func (s *Subscription) ID() uint64 { return s.id }

// SessionID returns the observed session.
func (s *Subscription) SessionID() string { return s.sessionID }

// Events yields replayed and then live events in sequence order. The
// channel is closed when the subscription ends; Err then says why.
func (s *Subscription) Events() <-chan progress.Event { return s.queue }

// Err returns why the subscription ended (wrapping ErrChannelClosed),
// or nil while it is live.
func (s *Subscription) Err() error {
	s.reasonMutex.Lock()
	defer s.reasonMutex.Unlock()
	return s.reason
}

// Dropped counts events discarded under OverflowDropOldest.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes. Events already queued remain readable until the
// channel drains. Close is idempotent.
func (s *Subscription) Close() {
	if s.topic == nil {
		return
	}
	s.topic.mutex.Lock()
	defer s.topic.mutex.Unlock()
	delete(s.topic.subscribers, s.id)
	s.endLocked(ErrUnsubscribed)
}

// endLocked records reason and closes the queue, once. The caller
// holds the topic lock, or owns a subscription with no topic.
func (s *Subscription) endLocked(reason error) {
	if s.ended {
		return
	}
	s.ended = true
	s.reasonMutex.Lock()
	s.reason = reason
	s.reasonMutex.Unlock()
	close(s.queue)
}
