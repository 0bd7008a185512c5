// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package tmux

import (
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/cocreateceo/tmux-builder-sub002/lib/testutil"
)

// NewTestServer starts an isolated tmux server for one test and kills
// it during cleanup. A "_guard" session keeps the server alive between
// the sessions the test creates. The test is skipped when tmux is not
// installed.
func NewTestServer(t *testing.T) *Server {
	t.Helper()

	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not installed")
	}

	server := NewServer(filepath.Join(testutil.SocketDir(t), "tmux.sock"), "/dev/null")
	if err := server.NewSession("_guard", SessionOptions{Command: []string{"sleep", "infinity"}}); err != nil {
		t.Fatalf("starting tmux test server: %v", err)
	}
	t.Cleanup(func() { _ = server.KillServer() })
	return server
}
