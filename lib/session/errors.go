// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "fmt"

// NotFoundError reports an unknown or no longer live session id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.ID)
}

// DuplicateError reports an attempt to register a session id, or
// start a terminal, that already exists.
type DuplicateError struct {
	ID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("session %s already exists", e.ID)
}

// InvalidTransitionError reports a transition outside the table.
type InvalidTransitionError struct {
	ID   string
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session %s: transition %s → %s not allowed", e.ID, e.From, e.To)
}

// WrongStateError reports an operation attempted in the wrong state.
type WrongStateError struct {
	ID        string
	Operation string
	State     State
	Want      State
}

func (e *WrongStateError) Error() string {
	return fmt.Sprintf("session %s: %s requires %s, session is %s", e.ID, e.Operation, e.Want, e.State)
}

// BusyError reports a dispatch attempted while another dispatch to the
// same session is still waiting for its acknowledgement.
type BusyError struct {
	ID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("session %s: another instruction is being dispatched", e.ID)
}

// DeliveryError reports that the terminal refused an instruction.
// Delivery failures are never retried.
type DeliveryError struct {
	ID  string
	Op  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("session %s: instruction delivery failed during %s: %v", e.ID, e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
