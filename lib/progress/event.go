// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress defines the structured events an agent reports
// about its own work and the frames observers receive for them.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Type classifies a progress event.
type Type string

const (
	// TypeAck acknowledges the pending instruction.
	TypeAck Type = "ack"

	// TypeStatus is a free-form status line.
	TypeStatus Type = "status"

	// TypeProgress carries a completion percentage and usually a
	// phase.
	TypeProgress Type = "progress"

	// TypeDone ends the current task successfully.
	TypeDone Type = "done"

	// TypeError ends the current task with a failure.
	TypeError Type = "error"

	// TypeCustom is passed through to observers without any effect on
	// session state.
	TypeCustom Type = "custom"
)

var allTypes = []Type{TypeAck, TypeStatus, TypeProgress, TypeDone, TypeError, TypeCustom}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType converts s to a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q (want one of ack, status, progress, done, error, custom)", s)
	}
	return t, nil
}

// PhaseLifecycle marks status events published by the orchestrator for
// session state changes, as opposed to events sent by the agent.
const PhaseLifecycle = "lifecycle"

// Event is one entry in a session's activity log. SessionID and Seq
// are assigned when the event is published; Seq increases by one per
// event within a session.
type Event struct {
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Type      Type      `json:"type"`
	Message   string    `json:"message,omitempty"`
	Percent   *int      `json:"percent,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the fields an agent controls.
func (e Event) Validate() error {
	var errs []error
	if !e.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown event type %q", e.Type))
	}
	if e.Percent != nil && (*e.Percent < 0 || *e.Percent > 100) {
		errs = append(errs, fmt.Errorf("percent %d outside 0-100", *e.Percent))
	}
	return errors.Join(errs...)
}

// Terminal reports whether the event ends the current task.
func (e Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}

// Frame is the push-channel representation of an event.
type Frame struct {
	Type      Type      `json:"type"`
	Message   string    `json:"message,omitempty"`
	Percent   *int      `json:"percent,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Frame returns the observer-facing view of e.
func (e Event) Frame() Frame {
	return Frame{
		Type:      e.Type,
		Message:   e.Message,
		Percent:   e.Percent,
		Phase:     e.Phase,
		Timestamp: e.Timestamp,
	}
}

// Percent returns a pointer to v, for building events.
func Percent(v int) *int { return &v }
