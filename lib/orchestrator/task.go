// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cocreateceo/tmux-builder-sub002/lib/dispatch"
	"github.com/cocreateceo/tmux-builder-sub002/lib/marker"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
)

// Dispatch hands task to a READY session and returns once the agent
// has acknowledged it; the session is then PROCESSING. A second
// dispatch while one is in flight fails with *session.BusyError.
//
// The handshake runs to completion even if ctx is cancelled: an
// instruction is never abandoned halfway. A delivery failure or an
// unacknowledged instruction moves the session to ERROR.
func (o *Orchestrator) Dispatch(ctx context.Context, id, task string) (dispatch.Receipt, error) {
	m, err := o.registry.Get(id)
	if err != nil {
		return dispatch.Receipt{}, err
	}
	if !m.dispatchMutex.TryLock() {
		return dispatch.Receipt{}, &session.BusyError{ID: id}
	}
	defer m.dispatchMutex.Unlock()

	if state := m.machine.State(); state != session.StateReady {
		return dispatch.Receipt{}, &session.WrongStateError{ID: id, Operation: "dispatch", State: state, Want: session.StateReady}
	}
	if strings.TrimSpace(task) == "" {
		return dispatch.Receipt{}, errors.New("task is empty")
	}

	if err := marker.Delete(m.target.Paths.Markers, marker.Completed); err != nil {
		return dispatch.Receipt{}, err
	}
	ack := m.beginDispatch()
	receipt, err := o.dispatcher.Dispatch(m.ctx, m.target, task, ack, o.handshake(o.options.Timing.AckTimeout))
	if err != nil {
		m.abortDispatch()
		if m.ctx.Err() != nil {
			return receipt, fmt.Errorf("session %s ended during dispatch: %w", id, err)
		}
		var delivery *session.DeliveryError
		var timeout *marker.TimeoutError
		if errors.As(err, &delivery) || errors.As(err, &timeout) {
			o.fail(m, o.withDiagnostics(m, fmt.Sprintf("dispatch failed: %v", err)))
		}
		return receipt, err
	}

	if _, err := m.machine.Update(func(s *session.Session) {
		s.InstructionCount++
		s.LastPromptDigest = receipt.Prompt.Digest
		s.Progress = 0
		s.Phase = ""
	}); err != nil {
		o.logger.Warn("recording dispatch failed", "session_id", id, "error", err)
	}
	if _, err := m.machine.TransitionFrom(session.StateReady, session.StateProcessing, "processing task"); err != nil {
		m.abortDispatch()
		return receipt, err
	}
	o.publishLifecycle(m, "processing task")

	taskCtx, stop := context.WithCancel(m.ctx)
	timer := o.clock.AfterFunc(o.options.Timing.ProcessingTimeout, func() {
		if m.machine.State() == session.StateProcessing {
			o.fail(m, fmt.Sprintf("task exceeded its %v processing timeout", o.options.Timing.ProcessingTimeout))
		}
	})
	o.group.Go(func() { o.watchCompleted(taskCtx, m) })

	if early := m.startTask(stop, timer); early != nil {
		o.logger.Debug("applying event that arrived before acknowledgement",
			"session_id", id, "type", early.Type)
		o.finishTask(m, *early)
	}
	return receipt, nil
}

// HandleEvent publishes an event reported by a session's agent and
// applies its effect on the session. It is the notify channel's sink.
func (o *Orchestrator) HandleEvent(event progress.Event) (progress.Event, error) {
	if err := event.Validate(); err != nil {
		return progress.Event{}, err
	}
	m, err := o.registry.Get(event.SessionID)
	if err != nil {
		return progress.Event{}, err
	}
	if state := m.machine.State(); state.Terminal() {
		return progress.Event{}, &session.WrongStateError{ID: m.id(), Operation: "report", State: state, Want: session.StateProcessing}
	}

	published, err := o.broadcaster.Publish(event)
	if err != nil {
		return progress.Event{}, err
	}

	if event.Percent != nil || event.Phase != "" || event.Type == progress.TypeStatus {
		if _, err := m.machine.Update(func(s *session.Session) {
			if event.Percent != nil {
				s.Progress = *event.Percent
			}
			if event.Phase != "" {
				s.Phase = event.Phase
			}
			if event.Message != "" {
				s.StatusMessage = event.Message
			}
		}); err != nil {
			o.logger.Warn("recording progress failed", "session_id", m.id(), "error", err)
		}
	}

	switch event.Type {
	case progress.TypeAck:
		if !m.acknowledge() {
			o.logger.Debug("ack with no dispatch pending", "session_id", m.id())
		}
	case progress.TypeDone, progress.TypeError:
		if !m.deferTerminal(published) {
			o.finishTask(m, published)
		}
	}
	return published, nil
}

// finishTask applies a done or error event to a PROCESSING session.
// Events for a session that is not PROCESSING have no effect.
func (o *Orchestrator) finishTask(m *managed, event progress.Event) {
	if m.machine.State() != session.StateProcessing {
		o.logger.Debug("task event outside processing ignored",
			"session_id", m.id(), "type", event.Type)
		return
	}
	switch event.Type {
	case progress.TypeDone:
		m.endTask()
		message := "task done"
		if event.Message != "" {
			message = "task done: " + event.Message
		}
		if _, err := m.machine.TransitionFrom(session.StateProcessing, session.StateReady, message); err != nil {
			return
		}
		o.publishLifecycle(m, "agent ready")
	case progress.TypeError:
		message := "agent reported an error"
		if event.Message != "" {
			message = "agent reported an error: " + event.Message
		}
		o.teardown(m, session.StateError, message, false)
	}
}

// watchCompleted treats the completed marker as a done event.
func (o *Orchestrator) watchCompleted(ctx context.Context, m *managed) {
	outcome, err := o.synchronizer.Wait(ctx, m.target.Paths.Markers, marker.Completed, marker.WaitOptions{
		Timeout:      o.options.Timing.ProcessingTimeout,
		PollInterval: o.options.Timing.PollInterval,
		SettleDelay:  o.options.Timing.SettleDelay,
	})
	if err != nil || outcome != marker.Found || ctx.Err() != nil {
		return
	}
	if _, err := o.HandleEvent(progress.Event{
		SessionID: m.id(),
		Type:      progress.TypeDone,
		Message:   "completed marker observed",
	}); err != nil {
		o.logger.Debug("completed marker after session change", "session_id", m.id(), "error", err)
	}
}
