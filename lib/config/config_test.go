// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tmux-builder.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultTimings(t *testing.T) {
	cfg := Default()
	tests := map[string]struct{ got, want time.Duration }{
		"poll":       {cfg.Timing.PollInterval, 500 * time.Millisecond},
		"settle":     {cfg.Timing.SettleDelay, 2 * time.Second},
		"startup":    {cfg.Timing.StartupDelay, 3 * time.Second},
		"ready":      {cfg.Timing.ReadyTimeout, 60 * time.Second},
		"ack":        {cfg.Timing.AckTimeout, 30 * time.Second},
		"backoff":    {cfg.Timing.Backoff, 2 * time.Second},
		"processing": {cfg.Timing.ProcessingTimeout, 2 * time.Hour},
		"heartbeat":  {cfg.Broadcast.Heartbeat, 20 * time.Second},
	}
	for name, test := range tests {
		if test.got != test.want {
			t.Errorf("%s = %v, want %v", name, test.got, test.want)
		}
	}
	if cfg.Timing.Attempts != 3 || cfg.Broadcast.Replay != 50 {
		t.Errorf("attempts=%d replay=%d, want 3 and 50", cfg.Timing.Attempts, cfg.Broadcast.Replay)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), EnvironmentVariable) {
		t.Fatalf("Load() error = %v, want one naming %s", err, EnvironmentVariable)
	}
}

func TestLoadFromEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, writeConfig(t, "paths:\n  root: /srv/tmux-builder\n"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Root != "/srv/tmux-builder" {
		t.Errorf("root = %q", cfg.Paths.Root)
	}
	if cfg.Tmux.Socket != "/srv/tmux-builder/tmux.sock" {
		t.Errorf("socket = %q, want it derived from the root", cfg.Tmux.Socket)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
environment: staging
paths:
  root: /data/sessions
tmux:
  agent_command: [claude, --model, opus]
  session_prefix: build-
timing:
  settle_delay: 750ms
  attempts: 5
broadcast:
  overflow: drop-oldest
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("environment = %q", cfg.Environment)
	}
	if strings.Join(cfg.Tmux.AgentCommand, " ") != "claude --model opus" {
		t.Errorf("agent_command = %q", cfg.Tmux.AgentCommand)
	}
	if cfg.Timing.SettleDelay != 750*time.Millisecond || cfg.Timing.Attempts != 5 {
		t.Errorf("timing = %+v", cfg.Timing)
	}
	if cfg.Timing.AckTimeout != 30*time.Second {
		t.Errorf("unset ack_timeout = %v, want default", cfg.Timing.AckTimeout)
	}
	if cfg.Broadcast.Overflow != "drop-oldest" || cfg.Broadcast.Replay != 50 {
		t.Errorf("broadcast = %+v", cfg.Broadcast)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvironmentSectionOverrides(t *testing.T) {
	content := `
environment: production
timing:
  ack_timeout: 30s
production:
  timing:
    ack_timeout: 90s
  http:
    address: 0.0.0.0:9000
  environment: development
development:
  timing:
    ack_timeout: 5s
`
	cfg, err := LoadFile(writeConfig(t, content))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Timing.AckTimeout != 90*time.Second {
		t.Errorf("ack_timeout = %v, want the production override", cfg.Timing.AckTimeout)
	}
	if cfg.HTTP.Address != "0.0.0.0:9000" {
		t.Errorf("address = %q", cfg.HTTP.Address)
	}
	if cfg.Environment != Production {
		t.Errorf("override section changed environment to %q", cfg.Environment)
	}
	if cfg.Timing.PollInterval != 500*time.Millisecond {
		t.Errorf("poll_interval = %v, want default kept", cfg.Timing.PollInterval)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("TB_TEST_DIR", "/from/env")
	vars := map[string]string{"TMUX_BUILDER_ROOT": "/root/sessions"}
	tests := map[string]string{
		"${TMUX_BUILDER_ROOT}/tmux.sock": "/root/sessions/tmux.sock",
		"${TB_TEST_DIR}/x":               "/from/env/x",
		"${TB_TEST_UNSET:-/fallback}/x":  "/fallback/x",
		"${TB_TEST_DIR:-/fallback}":      "/from/env",
		"/plain/path":                    "/plain/path",
		"${TB_TEST_UNSET}/x":             "/x",
	}
	for input, want := range tests {
		if got := expandVars(input, vars); got != want {
			t.Errorf("expandVars(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg, err := Parse([]byte(`
environment: qa
paths:
  root: relative/root
tmux:
  agent_command: []
timing:
  poll_interval: 0s
  attempts: 0
broadcast:
  overflow: block
  heartbeat: 90s
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{
		"invalid environment",
		"paths.root",
		"tmux.agent_command",
		"timing.poll_interval must be positive",
		"timing.attempts",
		"broadcast.overflow",
		"broadcast.pong_timeout must exceed",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error does not mention %q:\n%v", want, err)
		}
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	if _, err := Parse([]byte("timing:\n  ack_timeout: soon\n")); err == nil {
		t.Fatal("Parse accepted a malformed duration")
	}
}

func TestNotifyBinaryPath(t *testing.T) {
	directory := t.TempDir()
	binary := filepath.Join(directory, "tmux-builder-notify")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Paths.NotifyBinary = binary
	if got, err := cfg.NotifyBinaryPath(); err != nil || got != binary {
		t.Errorf("explicit path = (%q, %v)", got, err)
	}

	t.Setenv("PATH", directory)
	cfg.Paths.NotifyBinary = "tmux-builder-notify"
	if got, err := cfg.NotifyBinaryPath(); err != nil || got != binary {
		t.Errorf("PATH lookup = (%q, %v)", got, err)
	}

	cfg.Paths.NotifyBinary = "not-installed"
	if _, err := cfg.NotifyBinaryPath(); err == nil {
		t.Error("missing binary resolved")
	}
}
