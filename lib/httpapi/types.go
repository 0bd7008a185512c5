// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Version  string `json:"version"`
}

type ListResponse struct {
	Sessions []session.Session `json:"sessions"`
}

// DispatchRequest is the body of POST /v1/sessions/:id/dispatch.
type DispatchRequest struct {
	Task string `json:"task" binding:"required"`
}

// DispatchResponse reports an acknowledged dispatch.
type DispatchResponse struct {
	Session      session.Session `json:"session"`
	Attempts     int             `json:"attempts"`
	PromptDigest string          `json:"prompt_digest"`
}

type EventsResponse struct {
	Events []progress.Event `json:"events"`
}
