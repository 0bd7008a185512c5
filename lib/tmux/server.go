// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package tmux drives a dedicated tmux server that hosts one detached
// session per orchestrated agent.
//
// Every command goes through a Server, which prepends the -S flag for
// its socket, so nothing in the orchestrator can reach the user's own
// tmux server. Commands are always built as argument vectors; text
// sent to a pane never passes through a shell.
package tmux

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"unicode"
)

var (
	// ErrSessionExists is returned by NewSession when the name is
	// already taken on the server.
	ErrSessionExists = errors.New("tmux session already exists")

	// ErrNoSession is returned when a command targets a session that
	// does not exist (or the server is not running).
	ErrNoSession = errors.New("tmux session not found")

	// ErrMultilineText is returned by SendLiteral for text that would
	// not arrive at the pane as one physical line.
	ErrMultilineText = errors.New("literal text must be a single line without control characters")
)

// Key names a non-literal key understood by tmux send-keys.
type Key string

const (
	KeyEnter  Key = "Enter"
	KeyEscape Key = "Escape"
	KeyCtrlC  Key = "C-c"
	KeyCtrlU  Key = "C-u"
)

// Server is a tmux server identified by its socket path.
type Server struct {
	socketPath string
	configFile string // "-f" on new-session; empty means tmux's default lookup
}

// NewServer returns a Server for socketPath. Pass "/dev/null" as
// configFile to keep ~/.tmux.conf out of agent sessions.
func NewServer(socketPath, configFile string) *Server {
	return &Server{socketPath: socketPath, configFile: configFile}
}

// SocketPath returns the server's socket.
func (s *Server) SocketPath() string { return s.socketPath }

// SessionOptions describes a new detached session.
type SessionOptions struct {
	// WorkingDirectory is the start directory of the session's pane.
	WorkingDirectory string

	// Environment is exported into the session (tmux -e).
	Environment map[string]string

	// Command replaces the default shell when non-empty.
	Command []string
}

// NewSession creates a detached session. It returns ErrSessionExists
// (wrapped) when the name is already in use.
//
// The config file is passed here because new-session is the command
// that starts the server when it is not running yet.
func (s *Server) NewSession(name string, options SessionOptions) error {
	if s.HasSession(name) {
		return fmt.Errorf("tmux new-session %q: %w", name, ErrSessionExists)
	}
	cmd := exec.Command("tmux", s.newSessionArgs(name, options)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		text := strings.TrimSpace(string(output))
		if strings.Contains(text, "duplicate session") {
			return fmt.Errorf("tmux new-session %q: %w", name, ErrSessionExists)
		}
		return fmt.Errorf("tmux new-session %q: %w (%s)", name, err, text)
	}
	return nil
}

func (s *Server) newSessionArgs(name string, options SessionOptions) []string {
	var args []string
	if s.configFile != "" {
		args = append(args, "-f", s.configFile)
	}
	args = append(args, "-S", s.socketPath, "new-session", "-d", "-s", name)
	if options.WorkingDirectory != "" {
		args = append(args, "-c", options.WorkingDirectory)
	}
	keys := make([]string, 0, len(options.Environment))
	for key := range options.Environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, "-e", key+"="+options.Environment[key])
	}
	if len(options.Command) > 0 {
		args = append(args, "--")
		args = append(args, options.Command...)
	}
	return args
}

// HasSession reports whether the named session exists. It is false
// when the server is not running.
func (s *Server) HasSession(name string) bool {
	return exec.Command("tmux", "-S", s.socketPath, "has-session", "-t", sessionTarget(name)).Run() == nil
}

// SendLiteral types text into the session's active pane without
// interpreting key names and without pressing Enter. The text is
// passed as a single argv element after "-l --".
func (s *Server) SendLiteral(name, text string) error {
	if err := ValidateLiteral(text); err != nil {
		return err
	}
	_, err := s.run("send-keys", "-t", paneTarget(name), "-l", "--", text)
	return err
}

// SendKey presses a named key in the session's active pane.
func (s *Server) SendKey(name string, key Key) error {
	_, err := s.run("send-keys", "-t", paneTarget(name), string(key))
	return err
}

// ValidateLiteral rejects text containing line breaks or other
// control characters.
func ValidateLiteral(text string) error {
	for _, r := range text {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: found %q", ErrMultilineText, r)
		}
	}
	return nil
}

// KillSession terminates the named session. A missing session or a
// stopped server is not an error.
func (s *Server) KillSession(name string) error {
	_, err := s.run("kill-session", "-t", sessionTarget(name))
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// ForceKill sends SIGKILL to the pane process and then removes the
// session. Neither step negotiates with the agent.
func (s *Server) ForceKill(name string) error {
	if pid, err := s.panePID(name); err == nil && pid > 0 {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	return s.KillSession(name)
}

// KillServer stops the server and every session on it. A server that
// is already gone is not an error.
func (s *Server) KillServer() error {
	cmd := exec.Command("tmux", "-S", s.socketPath, "kill-server")
	output, err := cmd.CombinedOutput()
	if err != nil {
		text := strings.TrimSpace(string(output))
		if strings.Contains(text, "no server running") ||
			strings.Contains(text, "server exited unexpectedly") ||
			strings.Contains(text, "error connecting") {
			return nil
		}
		return fmt.Errorf("tmux kill-server: %w (%s)", err, text)
	}
	return nil
}

// CapturePane returns the visible content and scrollback of the
// session's active pane, limited to the last maxLines lines when
// maxLines > 0. Escape sequences are left in place.
func (s *Server) CapturePane(name string, maxLines int) (string, error) {
	output, err := s.run("capture-pane", "-t", paneTarget(name), "-p", "-S", "-", "-E", "-")
	if err != nil {
		return "", err
	}
	if maxLines <= 0 {
		return output, nil
	}
	return tailLines(output, maxLines), nil
}

// panePID returns the process id of the command in the session's
// active pane.
func (s *Server) panePID(name string) (int, error) {
	output, err := s.run("display-message", "-t", paneTarget(name), "-p", "#{pane_pid}")
	if err != nil {
		return 0, fmt.Errorf("getting pane PID: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("parsing pane PID %q: %w", strings.TrimSpace(output), err)
	}
	return pid, nil
}

func (s *Server) run(args ...string) (string, error) {
	fullArgs := append([]string{"-S", s.socketPath}, args...)
	output, err := exec.Command("tmux", fullArgs...).CombinedOutput()
	if err != nil {
		text := strings.TrimSpace(string(output))
		if isMissing(text) {
			return "", fmt.Errorf("tmux %s: %w (%s)", args[0], ErrNoSession, text)
		}
		return "", fmt.Errorf("tmux %s: %w (%s)", args[0], err, text)
	}
	return string(output), nil
}

func isMissing(output string) bool {
	return strings.Contains(output, "can't find session") ||
		strings.Contains(output, "can't find pane") ||
		strings.Contains(output, "can't find window") ||
		strings.Contains(output, "no server running") ||
		strings.Contains(output, "error connecting")
}

// sessionTarget forces an exact name match; a bare name would let
// tmux fall back to prefix matching.
func sessionTarget(name string) string { return "=" + name }

func paneTarget(name string) string { return "=" + name + ":" }

// tailLines returns the last n lines of s. A trailing newline ends the
// last line rather than starting an empty one.
func tailLines(s string, n int) string {
	if s == "" {
		return s
	}
	end := len(s) - 1
	if s[end] == '\n' {
		end--
	}
	seen := 0
	for i := end; i >= 0; i-- {
		if s[i] == '\n' {
			seen++
			if seen == n {
				return s[i+1:]
			}
		}
	}
	return s
}
