// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "fmt"

// State is a lifecycle state.
type State string

const (
	StateCreated      State = "CREATED"
	StateInitializing State = "INITIALIZING"
	StateReady        State = "READY"
	StateProcessing   State = "PROCESSING"
	StateCompleted    State = "COMPLETED"
	StateError        State = "ERROR"
)

var transitions = map[State][]State{
	StateCreated:      {StateInitializing, StateError},
	StateInitializing: {StateReady, StateError},
	StateReady:        {StateProcessing, StateCompleted, StateError},
	StateProcessing:   {StateReady, StateCompleted, StateError},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateInitializing, StateReady, StateProcessing, StateCompleted, StateError:
		return true
	}
	return false
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ParseState converts s to a State.
func ParseState(s string) (State, error) {
	state := State(s)
	if !state.Valid() {
		return "", fmt.Errorf("unknown session state %q", s)
	}
	return state, nil
}
