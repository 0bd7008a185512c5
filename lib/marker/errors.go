// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package marker

import (
	"fmt"
	"time"
)

// TimeoutError reports that a handshake used every attempt without
// observing its marker.
type TimeoutError struct {
	Marker   Name
	Attempts int
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s marker after %d attempts (%v each)",
		e.Marker, e.Attempts, e.Timeout)
}
