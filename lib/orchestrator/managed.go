// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/clock"
	"github.com/cocreateceo/tmux-builder-sub002/lib/dispatch"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
)

// managed is the orchestrator's handle on one live session.
//
// dispatchMutex serializes dispatches and is held for a whole
// handshake. mutex guards the fields below it and is only ever held
// briefly; nothing that blocks runs under it.
type managed struct {
	machine *session.Machine
	target  dispatch.Target
	request StartRequest

	// ctx is cancelled at teardown. It stops the notify server, task
	// watchers, and any handshake in flight.
	ctx    context.Context
	cancel context.CancelFunc

	dispatchMutex sync.Mutex

	mutex sync.Mutex
	// ack is non-nil while a dispatch awaits its acknowledgement; a
	// notify ack closes it.
	ack       chan struct{}
	ackClosed bool
	// dispatching is true from the instruction send until the session
	// is PROCESSING. A done or error arriving in that window is kept in
	// early and applied after the transition.
	dispatching  bool
	early        *progress.Event
	stopTask     context.CancelFunc
	taskTimer    *clock.Timer
	sessionTimer *clock.Timer
	tornDown     bool
}

func newManaged(parent context.Context, machine *session.Machine, target dispatch.Target, request StartRequest) *managed {
	ctx, cancel := context.WithCancel(parent)
	return &managed{
		machine: machine,
		target:  target,
		request: request,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (m *managed) id() string { return m.target.SessionID }

// beginDispatch opens the acknowledgement window.
func (m *managed) beginDispatch() <-chan struct{} {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ack = make(chan struct{})
	m.ackClosed = false
	m.dispatching = true
	m.early = nil
	return m.ack
}

// abortDispatch closes the window after a failed dispatch.
func (m *managed) abortDispatch() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ack = nil
	m.dispatching = false
	m.early = nil
}

// acknowledge satisfies the pending dispatch, if any. It reports
// whether one was pending.
func (m *managed) acknowledge() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.ack == nil || m.ackClosed {
		return false
	}
	close(m.ack)
	m.ackClosed = true
	return true
}

// deferTerminal keeps a done or error event that arrived before the
// session became PROCESSING. It reports whether the event was kept.
func (m *managed) deferTerminal(event progress.Event) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.dispatching {
		return false
	}
	if m.early == nil {
		m.early = &event
	}
	return true
}

// startTask installs the task watchers and closes the dispatch window,
// returning any event that arrived early.
func (m *managed) startTask(stop context.CancelFunc, timer *clock.Timer) *progress.Event {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stopTask = stop
	m.taskTimer = timer
	m.ack = nil
	m.dispatching = false
	early := m.early
	m.early = nil
	return early
}

// endTask stops the watchers of the current task.
func (m *managed) endTask() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.endTaskLocked()
}

func (m *managed) endTaskLocked() {
	if m.stopTask != nil {
		m.stopTask()
		m.stopTask = nil
	}
	if m.taskTimer != nil {
		m.taskTimer.Stop()
		m.taskTimer = nil
	}
}

func (m *managed) armSessionTimer(clk clock.Clock, lifetime time.Duration, expire func()) {
	if lifetime <= 0 {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.tornDown {
		return
	}
	m.sessionTimer = clk.AfterFunc(lifetime, expire)
}

// isTornDown reports whether teardown has begun.
func (m *managed) isTornDown() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.tornDown
}

// beginTeardown marks the session as going away. Only the first
// caller gets true.
func (m *managed) beginTeardown() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.tornDown {
		return false
	}
	m.tornDown = true
	m.endTaskLocked()
	if m.sessionTimer != nil {
		m.sessionTimer.Stop()
	}
	m.dispatching = false
	m.ack = nil
	return true
}
