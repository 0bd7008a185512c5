// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// ExitCoder is an error that carries its own exit status.
type ExitCoder interface {
	error
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits. The status is 1
// unless err (or an error it wraps) is an ExitCoder.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(ExitCode(err))
}

// ExitCode returns the status Fatal would exit with.
func ExitCode(err error) int {
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}
