// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi is the controller API: JSON endpoints to start,
// inspect, instruct, and end sessions, plus the websocket stream of a
// session's events.
//
//	POST   /v1/sessions               start (202; bring-up continues in the background)
//	GET    /v1/sessions               list live sessions
//	GET    /v1/sessions/:id           one session, live or finished
//	POST   /v1/sessions/:id/dispatch  send a task; returns once acknowledged
//	POST   /v1/sessions/:id/complete  end successfully
//	DELETE /v1/sessions/:id           kill
//	GET    /v1/sessions/:id/events    activity log tail (?limit=N)
//	GET    /v1/sessions/:id/stream    websocket push channel
//	GET    /healthz
//
// Errors are {"error": "..."} with a status derived from the error's
// type: 404 for unknown sessions, 409 for a session in the wrong state
// or busy with another dispatch, 504 when the agent never acknowledged,
// and 502 when the terminal could not be driven.
package httpapi
