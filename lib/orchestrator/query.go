// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"errors"
	"io/fs"

	"github.com/cocreateceo/tmux-builder-sub002/lib/broadcast"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
)

// Get returns a session. Sessions that have ended are read from their
// status file.
func (o *Orchestrator) Get(id string) (session.Session, error) {
	if m, err := o.registry.Get(id); err == nil {
		return m.machine.Snapshot(), nil
	}
	if !validID(id) {
		return session.Session{}, &session.NotFoundError{ID: id}
	}
	stored, err := session.Load(o.options.Layout.Paths(id).Status)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return session.Session{}, &session.NotFoundError{ID: id}
		}
		return session.Session{}, err
	}
	return stored, nil
}

// List returns the live sessions ordered by id.
func (o *Orchestrator) List() []session.Session {
	var sessions []session.Session
	for _, id := range o.registry.IDs() {
		if m, err := o.registry.Get(id); err == nil {
			sessions = append(sessions, m.machine.Snapshot())
		}
	}
	return sessions
}

// Events returns up to limit of a session's most recent events from its
// activity log.
func (o *Orchestrator) Events(id string, limit int) ([]progress.Event, error) {
	if _, err := o.Get(id); err != nil {
		return nil, err
	}
	return o.logs.Tail(id, limit)
}

// Subscribe opens a stream of a session's events. For a session that
// has ended the stream replays its last events and closes.
func (o *Orchestrator) Subscribe(id string) (*broadcast.Subscription, error) {
	if _, err := o.Get(id); err != nil {
		return nil, err
	}
	return o.broadcaster.Subscribe(id)
}

// validID rejects ids that would escape the session root.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		if r == '/' || r == '\\' || r == 0 {
			return false
		}
	}
	return true
}
