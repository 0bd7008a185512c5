// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/activitylog"
	"github.com/cocreateceo/tmux-builder-sub002/lib/clock"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// memoryLog is an in-memory Log.
type memoryLog struct {
	mutex  sync.Mutex
	events map[string][]progress.Event
	fail   error
}

func newMemoryLog() *memoryLog {
	return &memoryLog{events: make(map[string][]progress.Event)}
}

func (m *memoryLog) Append(event progress.Event) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.events[event.SessionID] = append(m.events[event.SessionID], event)
	return nil
}

func (m *memoryLog) Tail(sessionID string, n int) ([]progress.Event, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	events := m.events[sessionID]
	if len(events) > n {
		events = events[len(events)-n:]
	}
	return append([]progress.Event(nil), events...), nil
}

func newBroadcaster(t *testing.T, log Log, options Options) *Broadcaster {
	t.Helper()
	options.Clock = clock.Fake(epoch)
	b := New(log, options)
	if err := b.Open("s1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return b
}

func publish(t *testing.T, b *Broadcaster, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		if _, err := b.Publish(progress.Event{SessionID: "s1", Type: progress.TypeStatus, Message: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
}

func TestPublishAssignsSequenceAndTimestamp(t *testing.T) {
	log := newMemoryLog()
	b := newBroadcaster(t, log, Options{})

	first, err := b.Publish(progress.Event{SessionID: "s1", Type: progress.TypeAck})
	if err != nil {
		t.Fatal(err)
	}
	second, _ := b.Publish(progress.Event{SessionID: "s1", Type: progress.TypeStatus})

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("sequence numbers %d, %d; want 1, 2", first.Seq, second.Seq)
	}
	if !first.Timestamp.Equal(epoch) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, epoch)
	}
	if logged, _ := log.Tail("s1", 10); len(logged) != 2 {
		t.Fatalf("log holds %d events, want 2", len(logged))
	}
}

func TestSubscribeReplaysRecentThenLive(t *testing.T) {
	b := newBroadcaster(t, newMemoryLog(), Options{})
	publish(t, b, 60)

	subscription, err := b.Subscribe("s1")
	if err != nil {
		t.Fatal(err)
	}
	defer subscription.Close()

	for want := uint64(11); want <= 60; want++ {
		event := testutil.RequireReceive(t, subscription.Events(), 5*time.Second, "replayed event %d", want)
		if event.Seq != want {
			t.Fatalf("replayed seq %d, want %d", event.Seq, want)
		}
	}
	publish(t, b, 1)
	live := testutil.RequireReceive(t, subscription.Events(), 5*time.Second, "live event")
	if live.Seq != 61 {
		t.Fatalf("live seq %d, want 61", live.Seq)
	}
}

func TestConcurrentSubscribersSeeContiguousSequences(t *testing.T) {
	b := newBroadcaster(t, newMemoryLog(), Options{QueueSize: 2048})
	const total = 400

	var group sync.WaitGroup
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			if _, err := b.Publish(progress.Event{SessionID: "s1", Type: progress.TypeProgress, Percent: progress.Percent(i % 101)}); err != nil {
				t.Errorf("Publish: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 8; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			subscription, err := b.Subscribe("s1")
			if err != nil {
				t.Errorf("Subscribe: %v", err)
				return
			}
			var previous uint64
			for event := range subscription.Events() {
				if previous != 0 && event.Seq != previous+1 {
					t.Errorf("subscriber %d: seq %d after %d", subscription.ID(), event.Seq, previous)
					return
				}
				previous = event.Seq
			}
			if previous != total+1 {
				t.Errorf("subscriber %d ended at seq %d, want %d", subscription.ID(), previous, total+1)
			}
		}()
	}

	testutil.RequireClosed(t, done, 10*time.Second, "publisher")
	if _, err := b.Close("s1", &progress.Event{Type: progress.TypeDone}); err != nil {
		t.Fatal(err)
	}
	group.Wait()
}

func TestSlowObserverIsDisconnectedAlone(t *testing.T) {
	b := newBroadcaster(t, newMemoryLog(), Options{QueueSize: 2})

	slow, _ := b.Subscribe("s1")
	fast, _ := b.Subscribe("s1")

	received := make(chan uint64, 16)
	go func() {
		for event := range fast.Events() {
			received <- event.Seq
		}
		close(received)
	}()

	for i := 1; i <= 5; i++ {
		publish(t, b, 1)
		if got := testutil.RequireReceive(t, received, 5*time.Second, "fast observer event %d", i); got != uint64(i) {
			t.Fatalf("fast observer got seq %d, want %d", got, i)
		}
	}

	testutil.RequireClosed(t, slow.Events(), 5*time.Second, "slow observer stream")
	if !errors.Is(slow.Err(), ErrSlowObserver) || !errors.Is(slow.Err(), ErrChannelClosed) {
		t.Fatalf("slow observer Err = %v, want ErrSlowObserver", slow.Err())
	}
	if fast.Err() != nil {
		t.Fatalf("fast observer ended: %v", fast.Err())
	}
	if n := b.Subscribers("s1"); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}
}

func TestDropOldestKeepsNewest(t *testing.T) {
	b := newBroadcaster(t, newMemoryLog(), Options{QueueSize: 2, Overflow: OverflowDropOldest})
	subscription, _ := b.Subscribe("s1")

	publish(t, b, 5)

	first := testutil.RequireReceive(t, subscription.Events(), 5*time.Second, "first queued")
	second := testutil.RequireReceive(t, subscription.Events(), 5*time.Second, "second queued")
	if first.Seq != 4 || second.Seq != 5 {
		t.Fatalf("queue held %d, %d; want 4, 5", first.Seq, second.Seq)
	}
	if subscription.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", subscription.Dropped())
	}
	if subscription.Err() != nil {
		t.Errorf("subscription ended: %v", subscription.Err())
	}
}

func TestCloseDeliversFinalEventLast(t *testing.T) {
	b := newBroadcaster(t, newMemoryLog(), Options{})
	publish(t, b, 2)
	subscription, _ := b.Subscribe("s1")

	final, err := b.Close("s1", &progress.Event{Type: progress.TypeError, Message: "ack timeout"})
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if final.Seq != 3 {
		t.Errorf("final seq = %d, want 3", final.Seq)
	}

	var events []progress.Event
	for event := range subscription.Events() {
		events = append(events, event)
	}
	if len(events) != 3 || events[2].Type != progress.TypeError {
		t.Fatalf("received %+v, want two events then the final error", events)
	}
	if !errors.Is(subscription.Err(), ErrSessionEnded) {
		t.Fatalf("Err = %v, want ErrSessionEnded", subscription.Err())
	}

	if _, err := b.Publish(progress.Event{SessionID: "s1", Type: progress.TypeStatus}); !errors.Is(err, ErrNoTopic) {
		t.Fatalf("Publish after Close = %v, want ErrNoTopic", err)
	}
	if _, err := b.Close("s1", nil); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSubscribeAfterCloseReplaysHistory(t *testing.T) {
	b := newBroadcaster(t, newMemoryLog(), Options{})
	publish(t, b, 3)
	b.Close("s1", &progress.Event{Type: progress.TypeDone})

	subscription, err := b.Subscribe("s1")
	if err != nil {
		t.Fatal(err)
	}
	var seqs []uint64
	for event := range subscription.Events() {
		seqs = append(seqs, event.Seq)
	}
	if len(seqs) != 4 || seqs[3] != 4 {
		t.Fatalf("history = %v, want [1 2 3 4]", seqs)
	}
	if !errors.Is(subscription.Err(), ErrSessionEnded) {
		t.Fatalf("Err = %v, want ErrSessionEnded", subscription.Err())
	}
	subscription.Close()
}

func TestFailedAppendIsNotDelivered(t *testing.T) {
	log := newMemoryLog()
	b := newBroadcaster(t, log, Options{})
	subscription, _ := b.Subscribe("s1")
	defer subscription.Close()

	log.fail = errors.New("disk full")
	if _, err := b.Publish(progress.Event{SessionID: "s1", Type: progress.TypeStatus}); err == nil {
		t.Fatal("Publish succeeded with a failing log")
	}
	testutil.RequireNoReceive(t, subscription.Events(), 50*time.Millisecond, "undurable event delivered")

	log.fail = nil
	event, err := b.Publish(progress.Event{SessionID: "s1", Type: progress.TypeStatus})
	if err != nil || event.Seq != 1 {
		t.Fatalf("Publish after recovery = (seq %d, %v), want seq 1", event.Seq, err)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := newBroadcaster(t, newMemoryLog(), Options{})
	subscription, _ := b.Subscribe("s1")
	subscription.Close()
	subscription.Close()

	testutil.RequireClosed(t, subscription.Events(), 5*time.Second, "unsubscribed stream")
	if !errors.Is(subscription.Err(), ErrUnsubscribed) {
		t.Fatalf("Err = %v, want ErrUnsubscribed", subscription.Err())
	}
	publish(t, b, 1)
	if b.Subscribers("s1") != 0 {
		t.Fatal("unsubscribed observer still registered")
	}
}

func TestPublishWithoutTopic(t *testing.T) {
	b := New(newMemoryLog(), Options{})
	if _, err := b.Publish(progress.Event{SessionID: "nobody", Type: progress.TypeStatus}); !errors.Is(err, ErrNoTopic) {
		t.Fatalf("Publish = %v, want ErrNoTopic", err)
	}
}

func TestReopenContinuesFromDurableLog(t *testing.T) {
	root := t.TempDir()
	store := activitylog.NewStore(func(id string) string { return filepath.Join(root, id+".log") })
	defer store.CloseAll()

	first := newBroadcaster(t, store, Options{})
	publish(t, first, 3)
	first.Shutdown()

	second := newBroadcaster(t, store, Options{})
	subscription, err := second.Subscribe("s1")
	if err != nil {
		t.Fatal(err)
	}
	defer subscription.Close()
	for want := uint64(1); want <= 3; want++ {
		if event := testutil.RequireReceive(t, subscription.Events(), 5*time.Second, "replay"); event.Seq != want {
			t.Fatalf("replayed seq %d, want %d", event.Seq, want)
		}
	}
	event, err := second.Publish(progress.Event{SessionID: "s1", Type: progress.TypeStatus})
	if err != nil || event.Seq != 4 {
		t.Fatalf("Publish after restart = (seq %d, %v), want seq 4", event.Seq, err)
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	for _, name := range []string{"disconnect", "drop-oldest"} {
		if _, err := ParseOverflowPolicy(name); err != nil {
			t.Errorf("ParseOverflowPolicy(%q): %v", name, err)
		}
	}
	if _, err := ParseOverflowPolicy("block"); err == nil {
		t.Error(`ParseOverflowPolicy("block") succeeded`)
	}
}
