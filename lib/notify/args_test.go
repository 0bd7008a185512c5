// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Request
		wantErr bool
	}{
		{
			name: "type only",
			args: []string{"--socket", "/s", "ack"},
			want: Request{Type: progress.TypeAck},
		},
		{
			name: "message",
			args: []string{"--socket", "/s", "done", "build complete"},
			want: Request{Type: progress.TypeDone, Message: "build complete"},
		},
		{
			name: "message and percent",
			args: []string{"--socket=/s", "progress", "tests", "75"},
			want: Request{Type: progress.TypeProgress, Message: "tests", Percent: progress.Percent(75)},
		},
		{
			name: "bare percent",
			args: []string{"--socket", "/s", "progress", "40%"},
			want: Request{Type: progress.TypeProgress, Percent: progress.Percent(40)},
		},
		{
			name: "numeric status message",
			args: []string{"--socket", "/s", "status", "42"},
			want: Request{Type: progress.TypeStatus, Message: "42"},
		},
		{
			name: "phase after positionals",
			args: []string{"--socket", "/s", "status", "deploying", "--phase", "deploy"},
			want: Request{Type: progress.TypeStatus, Message: "deploying", Phase: "deploy"},
		},
		{
			name: "upper case type",
			args: []string{"--socket", "/s", "ERROR", "tests failed"},
			want: Request{Type: progress.TypeError, Message: "tests failed"},
		},
		{name: "no socket", args: []string{"done"}, wantErr: true},
		{name: "no type", args: []string{"--socket", "/s"}, wantErr: true},
		{name: "unknown type", args: []string{"--socket", "/s", "yay"}, wantErr: true},
		{name: "bad percent", args: []string{"--socket", "/s", "progress", "x", "half"}, wantErr: true},
		{name: "percent range", args: []string{"--socket", "/s", "progress", "x", "101"}, wantErr: true},
		{name: "too many", args: []string{"--socket", "/s", "status", "a", "1", "b"}, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			invocation, err := ParseArgs(test.args)
			if test.wantErr {
				if err == nil {
					t.Fatalf("ParseArgs(%q) succeeded: %+v", test.args, invocation)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArgs(%q): %v", test.args, err)
			}
			got := invocation.Request
			if got.Type != test.want.Type || got.Message != test.want.Message || got.Phase != test.want.Phase {
				t.Errorf("request = %+v, want %+v", got, test.want)
			}
			if (got.Percent == nil) != (test.want.Percent == nil) ||
				(got.Percent != nil && *got.Percent != *test.want.Percent) {
				t.Errorf("percent = %v, want %v", got.Percent, test.want.Percent)
			}
			if invocation.Socket != "/s" {
				t.Errorf("socket = %q", invocation.Socket)
			}
		})
	}
}

func TestWriteScriptPassesArgumentsThrough(t *testing.T) {
	echo, err := exec.LookPath("echo")
	if err != nil {
		t.Skip("echo not available")
	}
	directory := t.TempDir()
	script := filepath.Join(directory, "bin", "notify")
	if err := os.MkdirAll(filepath.Dir(script), 0o755); err != nil {
		t.Fatal(err)
	}
	socket := filepath.Join(directory, "it's here", "notify.sock")

	if err := WriteScript(script, echo, socket); err != nil {
		t.Fatalf("WriteScript: %v", err)
	}
	info, err := os.Stat(script)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Fatalf("script mode %v is not executable", info.Mode())
	}

	output, err := exec.Command(script, "done", "it $HOME works; rm -rf /").Output()
	if err != nil {
		t.Fatalf("running script: %v", err)
	}
	want := "--socket " + socket + " done it $HOME works; rm -rf /"
	if strings.TrimSpace(string(output)) != want {
		t.Errorf("script output = %q, want %q", output, want)
	}
}

func TestWriteScriptRequiresAbsolutePaths(t *testing.T) {
	if err := WriteScript(filepath.Join(t.TempDir(), "notify"), "tmux-builder-notify", "/x.sock"); err == nil {
		t.Error("relative binary accepted")
	}
}
