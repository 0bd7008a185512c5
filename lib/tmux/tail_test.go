// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package tmux

import "testing"

func TestTailLines(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"", 3, ""},
		{"a\nb\nc\n", 2, "b\nc\n"},
		{"a\nb\nc", 2, "b\nc"},
		{"a\nb\n", 5, "a\nb\n"},
		{"only\n", 1, "only\n"},
	}
	for _, test := range tests {
		if got := tailLines(test.input, test.n); got != test.want {
			t.Errorf("tailLines(%q, %d) = %q, want %q", test.input, test.n, got, test.want)
		}
	}
}

func TestNewSessionArgs(t *testing.T) {
	server := NewServer("/tmp/tb.sock", "/dev/null")
	args := server.newSessionArgs("tb-1", SessionOptions{
		WorkingDirectory: "/work",
		Environment:      map[string]string{"B": "2", "A": "1"},
		Command:          []string{"agent", "--flag"},
	})
	want := []string{
		"-f", "/dev/null", "-S", "/tmp/tb.sock", "new-session", "-d", "-s", "tb-1",
		"-c", "/work", "-e", "A=1", "-e", "B=2", "--", "agent", "--flag",
	}
	if len(args) != len(want) {
		t.Fatalf("args = %q, want %q", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q (full: %q)", i, args[i], want[i], args)
		}
	}
}
