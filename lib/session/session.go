// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is the persisted view of one orchestrated agent.
type Session struct {
	ID               string    `json:"id"`
	Label            string    `json:"label,omitempty"`
	State            State     `json:"state"`
	WorkingDirectory string    `json:"working_directory"`
	TerminalHandle   string    `json:"terminal_handle"`
	Progress         int       `json:"progress"`
	Phase            string    `json:"phase,omitempty"`
	StatusMessage    string    `json:"status_message,omitempty"`
	InstructionCount int       `json:"instruction_count"`
	LastPromptDigest string    `json:"last_prompt_digest,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewID returns a random, unguessable session id.
func NewID() string { return uuid.NewString() }

// TerminalHandle returns the tmux session name for a session id.
func TerminalHandle(prefix, id string) string { return prefix + id }
