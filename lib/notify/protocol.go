// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

// ActionEmit is the socket action that publishes one event.
const ActionEmit = "emit"

// Request is the body of an emit call.
type Request struct {
	Type    progress.Type `cbor:"type"`
	Message string        `cbor:"message,omitempty"`
	Percent *int          `cbor:"percent,omitempty"`
	Phase   string        `cbor:"phase,omitempty"`
}

// Reply confirms a published event.
type Reply struct {
	Seq uint64 `cbor:"seq"`
}

func (r Request) fields() map[string]any {
	fields := map[string]any{"type": string(r.Type)}
	if r.Message != "" {
		fields["message"] = r.Message
	}
	if r.Percent != nil {
		fields["percent"] = *r.Percent
	}
	if r.Phase != "" {
		fields["phase"] = r.Phase
	}
	return fields
}
