// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify is the channel an agent uses to report on its own
// work.
//
// Each session gets its own Unix socket and a wrapper script,
// {root}/{id}/bin/notify, that runs the notify helper against that
// socket. The session id is bound to the server when the session is
// created; requests never carry one, so an agent can only ever report
// about its own session.
//
// The agent-facing contract is
//
//	notify <type> [message] [percent] [--phase P]
//
// and every call produces exactly one progress event, published
// before the call returns.
package notify
