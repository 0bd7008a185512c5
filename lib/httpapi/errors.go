// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"errors"
	"net/http"

	"github.com/cocreateceo/tmux-builder-sub002/lib/marker"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
)

// StatusFor maps an error from the controller to an HTTP status.
func StatusFor(err error) int {
	var (
		notFound   *session.NotFoundError
		duplicate  *session.DuplicateError
		busy       *session.BusyError
		state      *session.WrongStateError
		transition *session.InvalidTransitionError
		timeout    *marker.TimeoutError
		delivery   *session.DeliveryError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &duplicate), errors.As(err, &busy), errors.As(err, &state), errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &delivery):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
