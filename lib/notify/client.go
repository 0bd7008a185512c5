// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"

	"github.com/cocreateceo/tmux-builder-sub002/lib/service"
)

// Emit sends request to the notify socket and returns the event's
// sequence number. A rejected event is a *service.ServiceError.
func Emit(ctx context.Context, socketPath string, request Request) (uint64, error) {
	var reply Reply
	err := service.NewSocketClient(socketPath).Call(ctx, ActionEmit, request.fields(), &reply)
	return reply.Seq, err
}
