// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cocreateceo/tmux-builder-sub002/lib/clock"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

// DefaultReplay is the number of recent events a new subscriber
// receives before live events.
const DefaultReplay = 50

var (
	// ErrChannelClosed is wrapped by every reason a subscription ends.
	ErrChannelClosed = errors.New("broadcast channel closed")

	// ErrSessionEnded ends subscriptions when their session reaches a
	// terminal state.
	ErrSessionEnded = fmt.Errorf("%w: session ended", ErrChannelClosed)

	// ErrSlowObserver ends a subscription whose queue overflowed under
	// OverflowDisconnect.
	ErrSlowObserver = fmt.Errorf("%w: observer fell behind", ErrChannelClosed)

	// ErrUnsubscribed ends a subscription closed by its owner.
	ErrUnsubscribed = fmt.Errorf("%w: unsubscribed", ErrChannelClosed)

	// ErrShutdown ends subscriptions when the broadcaster stops.
	ErrShutdown = fmt.Errorf("%w: broadcaster shut down", ErrChannelClosed)

	// ErrNoTopic is returned by Publish for a session whose topic is
	// not open.
	ErrNoTopic = errors.New("no open broadcast topic for session")
)

// Log is the durable store behind replay.
type Log interface {
	Append(event progress.Event) error
	Tail(sessionID string, n int) ([]progress.Event, error)
}

// OverflowPolicy decides what happens when a subscriber's queue is
// full.
type OverflowPolicy string

const (
	// OverflowDisconnect ends the subscription with ErrSlowObserver.
	// The observer may resubscribe and catch up from the replay.
	OverflowDisconnect OverflowPolicy = "disconnect"

	// OverflowDropOldest discards the oldest queued event to make
	// room.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
)

// ParseOverflowPolicy validates a configured policy name.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch policy := OverflowPolicy(name); policy {
	case OverflowDisconnect, OverflowDropOldest:
		return policy, nil
	}
	return "", fmt.Errorf("unknown overflow policy %q (want %q or %q)", name, OverflowDisconnect, OverflowDropOldest)
}

// Options configures a Broadcaster. Zero values select defaults.
type Options struct {
	Replay    int
	QueueSize int
	Overflow  OverflowPolicy
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Broadcaster owns the topics of every session.
type Broadcaster struct {
	log       Log
	replay    int
	queueSize int
	overflow  OverflowPolicy
	clock     clock.Clock
	logger    *slog.Logger

	nextSubscriber atomic.Uint64

	mutex  sync.Mutex
	topics map[string]*topic
}

type topic struct {
	sessionID string

	mutex       sync.Mutex
	closed      bool
	seq         uint64
	recent      []progress.Event
	subscribers map[uint64]*Subscription
}

// New returns a Broadcaster persisting events to log.
func New(log Log, options Options) *Broadcaster {
	if options.Replay <= 0 {
		options.Replay = DefaultReplay
	}
	if options.QueueSize <= 0 {
		options.QueueSize = 256
	}
	if options.Overflow == "" {
		options.Overflow = OverflowDisconnect
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		log:       log,
		replay:    options.Replay,
		queueSize: options.QueueSize,
		overflow:  options.Overflow,
		clock:     options.Clock,
		logger:    options.Logger,
		topics:    make(map[string]*topic),
	}
}

// Open creates the topic for a session, seeding its sequence number and
// replay ring from the durable log so numbering continues across
// restarts. Opening an open topic does nothing.
func (b *Broadcaster) Open(sessionID string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, ok := b.topics[sessionID]; ok {
		return nil
	}
	history, err := b.log.Tail(sessionID, b.replay)
	if err != nil {
		return fmt.Errorf("loading history for session %s: %w", sessionID, err)
	}
	t := &topic{
		sessionID:   sessionID,
		recent:      history,
		subscribers: make(map[uint64]*Subscription),
	}
	if len(history) > 0 {
		t.seq = history[len(history)-1].Seq
	}
	b.topics[sessionID] = t
	return nil
}

// Publish assigns the next sequence number (and a timestamp, if
// unset), appends the event to the durable log, and delivers it to the
// session's subscribers. It returns the event as published. Nothing is
// delivered when the log append fails.
func (b *Broadcaster) Publish(event progress.Event) (progress.Event, error) {
	t := b.lookup(event.SessionID)
	if t == nil {
		return event, fmt.Errorf("publishing to session %s: %w", event.SessionID, ErrNoTopic)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.closed {
		return event, fmt.Errorf("publishing to session %s: %w", event.SessionID, ErrNoTopic)
	}
	return b.publishLocked(t, event)
}

func (b *Broadcaster) publishLocked(t *topic, event progress.Event) (progress.Event, error) {
	event.SessionID = t.sessionID
	event.Seq = t.seq + 1
	if event.Timestamp.IsZero() {
		event.Timestamp = b.clock.Now().UTC()
	}
	if err := b.log.Append(event); err != nil {
		return event, fmt.Errorf("recording event for session %s: %w", event.SessionID, err)
	}
	t.seq = event.Seq

	t.recent = append(t.recent, event)
	if len(t.recent) > b.replay {
		t.recent = t.recent[len(t.recent)-b.replay:]
	}
	for _, subscriber := range t.subscribers {
		b.deliverLocked(t, subscriber, event)
	}
	return event, nil
}

// deliverLocked offers event to one subscriber. t.mutex is held.
func (b *Broadcaster) deliverLocked(t *topic, subscriber *Subscription, event progress.Event) {
	select {
	case subscriber.queue <- event:
		return
	default:
	}

	switch b.overflow {
	case OverflowDropOldest:
		select {
		case <-subscriber.queue:
		default:
		}
		select {
		case subscriber.queue <- event:
		default:
		}
		subscriber.dropped.Add(1)
		b.logger.Warn("observer queue full, dropped oldest event",
			"session_id", t.sessionID, "subscriber", subscriber.id)
	default:
		delete(t.subscribers, subscriber.id)
		subscriber.endLocked(ErrSlowObserver)
		b.logger.Warn("observer queue full, disconnecting",
			"session_id", t.sessionID, "subscriber", subscriber.id)
	}
}

// Subscribe returns a subscription that yields the last Replay events
// of the session followed by every event published afterwards. For a
// session without an open topic it yields the logged history and then
// ends with ErrSessionEnded.
func (b *Broadcaster) Subscribe(sessionID string) (*Subscription, error) {
	id := b.nextSubscriber.Add(1)

	t := b.lookup(sessionID)
	if t == nil {
		history, err := b.log.Tail(sessionID, b.replay)
		if err != nil {
			return nil, fmt.Errorf("loading history for session %s: %w", sessionID, err)
		}
		subscription := newSubscription(id, sessionID, nil, len(history))
		for _, event := range history {
			subscription.queue <- event
		}
		subscription.endLocked(ErrSessionEnded)
		return subscription, nil
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscription := newSubscription(id, sessionID, t, b.queueSize+len(t.recent))
	for _, event := range t.recent {
		subscription.queue <- event
	}
	t.subscribers[id] = subscription
	b.logger.Debug("observer subscribed",
		"session_id", sessionID, "subscriber", id, "replayed", len(t.recent))
	return subscription, nil
}

// Close ends a session's topic. When final is non-nil it is published
// first, under the same lock that ends the subscriptions, so it is the
// last event every subscriber receives. Closing a topic that is not
// open does nothing.
func (b *Broadcaster) Close(sessionID string, final *progress.Event) (progress.Event, error) {
	b.mutex.Lock()
	t := b.topics[sessionID]
	delete(b.topics, sessionID)
	b.mutex.Unlock()

	if t == nil {
		return progress.Event{}, nil
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.closed = true

	var published progress.Event
	var err error
	if final != nil {
		published, err = b.publishLocked(t, *final)
	}
	t.endAllLocked(ErrSessionEnded)
	return published, err
}

// Shutdown ends every subscription of every topic.
func (b *Broadcaster) Shutdown() {
	b.mutex.Lock()
	topics := b.topics
	b.topics = make(map[string]*topic)
	b.mutex.Unlock()

	for _, t := range topics {
		t.endAll(ErrShutdown)
	}
}

// Subscribers returns the number of live subscriptions of a session.
func (b *Broadcaster) Subscribers(sessionID string) int {
	t := b.lookup(sessionID)
	if t == nil {
		return 0
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.subscribers)
}

func (b *Broadcaster) lookup(sessionID string) *topic {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.topics[sessionID]
}

func (t *topic) endAll(reason error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.closed = true
	t.endAllLocked(reason)
}

func (t *topic) endAllLocked(reason error) {
	for id, subscriber := range t.subscribers {
		delete(t.subscribers, id)
		subscriber.endLocked(reason)
	}
}
