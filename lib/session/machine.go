// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cocreateceo/tmux-builder-sub002/lib/clock"
	"github.com/cocreateceo/tmux-builder-sub002/lib/statefile"
)

// Machine guards one Session and persists it on every change.
type Machine struct {
	statusPath string
	clock      clock.Clock
	logger     *slog.Logger

	mutex   sync.Mutex
	session Session
}

// NewMachine wraps session, persisting it to statusPath. The initial
// state is written immediately.
func NewMachine(session Session, statusPath string, clk clock.Clock, logger *slog.Logger) (*Machine, error) {
	m := &Machine{
		statusPath: statusPath,
		clock:      clk,
		logger:     logger.With("session_id", session.ID),
		session:    session,
	}
	if m.session.State == "" {
		m.session.State = StateCreated
	}
	now := clk.Now().UTC()
	if m.session.CreatedAt.IsZero() {
		m.session.CreatedAt = now
	}
	m.session.UpdatedAt = now
	if err := statefile.WriteJSON(statusPath, m.session); err != nil {
		return nil, fmt.Errorf("writing initial status: %w", err)
	}
	return m, nil
}

// Snapshot returns a copy of the session.
func (m *Machine) Snapshot() Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.session
}

// State returns the current state.
func (m *Machine) State() State {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.session.State
}

// Transition moves the session to state to, setting the status message
// when message is non-empty. A transition outside the table is rejected
// with *InvalidTransitionError and logged; the session is unchanged.
func (m *Machine) Transition(to State, message string) (Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.transitionLocked(m.session.State, to, message)
}

// TransitionFrom is Transition guarded by the expected current state:
// it fails with *InvalidTransitionError when the session is no longer
// in from. Racing completions use it so only one of them wins.
func (m *Machine) TransitionFrom(from, to State, message string) (Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.session.State != from {
		err := &InvalidTransitionError{ID: m.session.ID, From: m.session.State, To: to}
		m.logger.Debug("conditional transition skipped",
			"expected", from, "state", m.session.State, "to", to)
		return m.session, err
	}
	return m.transitionLocked(from, to, message)
}

func (m *Machine) transitionLocked(from, to State, message string) (Session, error) {
	if !CanTransition(from, to) {
		err := &InvalidTransitionError{ID: m.session.ID, From: from, To: to}
		m.logger.Warn("rejected state transition", "from", from, "to", to)
		return m.session, err
	}

	previous := m.session
	m.session.State = to
	if message != "" {
		m.session.StatusMessage = message
	}
	m.session.UpdatedAt = m.clock.Now().UTC()
	if err := statefile.WriteJSON(m.statusPath, m.session); err != nil {
		m.session = previous
		return m.session, fmt.Errorf("persisting %s → %s: %w", from, to, err)
	}
	m.logger.Info("session state changed", "from", from, "to", to, "message", message)
	return m.session, nil
}

// Update applies change to the session's non-state fields and persists
// the result. The state, id, and creation time cannot be changed this
// way. Updates to a terminal session are ignored.
func (m *Machine) Update(change func(*Session)) (Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.session.State.Terminal() {
		return m.session, nil
	}
	previous := m.session
	change(&m.session)
	m.session.ID = previous.ID
	m.session.State = previous.State
	m.session.CreatedAt = previous.CreatedAt
	m.session.UpdatedAt = m.clock.Now().UTC()
	if err := statefile.WriteJSON(m.statusPath, m.session); err != nil {
		m.session = previous
		return m.session, fmt.Errorf("persisting session update: %w", err)
	}
	return m.session, nil
}

// Load reads a persisted session.
func Load(statusPath string) (Session, error) {
	var s Session
	if err := statefile.ReadJSON(statusPath, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}
