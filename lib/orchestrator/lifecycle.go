// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
	"github.com/cocreateceo/tmux-builder-sub002/lib/tmux"
)

// Complete ends a READY or PROCESSING session successfully.
func (o *Orchestrator) Complete(id string) (session.Session, error) {
	m, err := o.registry.Get(id)
	if err != nil {
		return session.Session{}, err
	}
	if state := m.machine.State(); !session.CanTransition(state, session.StateCompleted) {
		return session.Session{}, &session.WrongStateError{ID: id, Operation: "complete", State: state, Want: session.StateReady}
	}
	o.teardown(m, session.StateCompleted, "completed", true)
	return o.snapshotOrLoad(id), nil
}

// Kill ends a session in any live state. The session is recorded as
// ERROR with the message "killed".
func (o *Orchestrator) Kill(id string) (session.Session, error) {
	m, err := o.registry.Get(id)
	if err != nil {
		return session.Session{}, err
	}
	o.teardown(m, session.StateError, "killed", true)
	return o.snapshotOrLoad(id), nil
}

func (o *Orchestrator) fail(m *managed, message string) {
	o.teardown(m, session.StateError, message, true)
}

// teardown moves a session to a terminal state and releases
// everything it holds. With publishFinal a final done (COMPLETED) or
// error (ERROR) event carrying message ends the session's streams;
// otherwise the last event already published is the final one.
func (o *Orchestrator) teardown(m *managed, state session.State, message string, publishFinal bool) {
	if !m.beginTeardown() {
		return
	}
	id := m.id()
	m.cancel()

	// The state is recorded before the final event so that an observer
	// reacting to the end of its stream reads the terminal state.
	if _, err := m.machine.Transition(state, message); err != nil {
		o.logger.Error("recording terminal state failed", "session_id", id, "state", state, "error", err)
	}
	var final *progress.Event
	if publishFinal {
		kind := progress.TypeError
		if state == session.StateCompleted {
			kind = progress.TypeDone
		}
		final = &progress.Event{SessionID: id, Type: kind, Message: message}
	}
	if _, err := o.broadcaster.Close(id, final); err != nil {
		o.logger.Warn("publishing final event failed", "session_id", id, "error", err)
	}
	o.killTerminal(m)

	o.retireLog(id)
	o.registry.Remove(id)
	o.logger.Info("session ended", "session_id", id, "state", state, "message", message)
}

func (o *Orchestrator) retireLog(id string) {
	if !o.options.ArchiveLogs {
		if err := o.logs.Close(id); err != nil {
			o.logger.Warn("closing activity log failed", "session_id", id, "error", err)
		}
		return
	}
	if _, err := o.logs.Archive(id); err != nil {
		o.logger.Warn("archiving activity log failed", "session_id", id, "error", err)
	}
}

// Recover marks sessions left live by a previous orchestrator process
// as ERROR and kills their terminals. It returns the ids it recovered.
func (o *Orchestrator) Recover() ([]string, error) {
	ids, err := o.options.Layout.List()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var recovered []string
	var errs []error
	for _, id := range ids {
		if _, err := o.registry.Get(id); err == nil {
			continue
		}
		paths := o.options.Layout.Paths(id)
		stored, err := session.Load(paths.Status)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		if stored.State.Terminal() {
			continue
		}

		const message = "orchestrator restarted"
		machine, err := session.NewMachine(stored, paths.Status, o.clock, o.logger)
		if err == nil {
			_, err = machine.Transition(session.StateError, message)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		if stored.TerminalHandle != "" {
			if err := o.terminal.ForceKill(stored.TerminalHandle); err != nil && !errors.Is(err, tmux.ErrNoSession) {
				o.logger.Warn("killing orphaned terminal failed", "session_id", id, "error", err)
			}
		}
		if err := o.broadcaster.Open(id); err == nil {
			o.broadcaster.Close(id, &progress.Event{SessionID: id, Type: progress.TypeError, Message: message})
		}
		o.retireLog(id)

		o.logger.Warn("recovered orphaned session", "session_id", id, "previous_state", stored.State)
		recovered = append(recovered, id)
	}
	return recovered, errors.Join(errs...)
}

// Shutdown ends every live session as ERROR and waits for background
// work, or for ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	for _, id := range o.registry.IDs() {
		if m, err := o.registry.Get(id); err == nil {
			o.teardown(m, session.StateError, "orchestrator stopped", true)
		}
	}
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	o.broadcaster.Shutdown()
	return o.logs.CloseAll()
}
