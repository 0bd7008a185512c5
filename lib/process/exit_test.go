// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"testing"
)

type codedError struct{ code int }

func (e codedError) Error() string { return fmt.Sprintf("exit %d", e.code) }
func (e codedError) ExitCode() int { return e.code }

func TestExitCode(t *testing.T) {
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Errorf("plain error exits %d, want 1", got)
	}
	if got := ExitCode(fmt.Errorf("dispatch: %w", codedError{code: 3})); got != 3 {
		t.Errorf("wrapped coded error exits %d, want 3", got)
	}
}
