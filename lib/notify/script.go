// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cocreateceo/tmux-builder-sub002/lib/statefile"
)

// WriteScript installs the wrapper at path. It execs notifyBinary with
// the session's socket and passes the agent's arguments through
// untouched.
func WriteScript(path, notifyBinary, socketPath string) error {
	if !filepath.IsAbs(notifyBinary) || !filepath.IsAbs(socketPath) {
		return fmt.Errorf("notify script: binary %q and socket %q must be absolute", notifyBinary, socketPath)
	}
	script := fmt.Sprintf("#!/bin/sh\nexec %s --socket %s \"$@\"\n", quote(notifyBinary), quote(socketPath))
	return statefile.Write(path, []byte(script), 0o755)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
