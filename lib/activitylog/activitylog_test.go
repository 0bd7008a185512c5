// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package activitylog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func event(sessionID string, seq uint64) progress.Event {
	return progress.Event{
		SessionID: sessionID,
		Seq:       seq,
		Type:      progress.TypeStatus,
		Message:   fmt.Sprintf("step <%d>", seq),
		Timestamp: epoch.Add(time.Duration(seq) * time.Second),
	}
}

func writeEvents(t *testing.T, path string, count int) {
	t.Helper()
	writer, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 1; i <= count; i++ {
		if err := writer.Append(event("s1", uint64(i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestAppendWritesOneLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	writeEvents(t, path, 3)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("log has %d lines, want 3:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"step <1>"`) {
		t.Errorf("HTML escaping applied to message: %s", lines[0])
	}
}

func TestOpenAppendsToExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	writeEvents(t, path, 2)
	writeEvents(t, path, 2)

	events, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("Read returned %d events, want 4", len(events))
	}
}

func TestAppendAfterClose(t *testing.T) {
	writer, err := Open(filepath.Join(t.TempDir(), "activity.log"))
	if err != nil {
		t.Fatal(err)
	}
	writer.Close()
	if err := writer.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := writer.Append(event("s1", 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Append after Close = %v, want ErrClosed", err)
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	writeEvents(t, path, 120)

	tests := []struct {
		n         int
		wantFirst uint64
		wantLen   int
	}{
		{50, 71, 50},
		{1, 120, 1},
		{500, 1, 120},
		{0, 0, 0},
	}
	for _, test := range tests {
		events, err := Tail(path, test.n)
		if err != nil {
			t.Fatalf("Tail(%d): %v", test.n, err)
		}
		if len(events) != test.wantLen {
			t.Fatalf("Tail(%d) returned %d events, want %d", test.n, len(events), test.wantLen)
		}
		if test.wantLen == 0 {
			continue
		}
		if events[0].Seq != test.wantFirst {
			t.Errorf("Tail(%d) starts at seq %d, want %d", test.n, events[0].Seq, test.wantFirst)
		}
		for i := 1; i < len(events); i++ {
			if events[i].Seq != events[i-1].Seq+1 {
				t.Fatalf("Tail(%d) out of order at %d: %d after %d", test.n, i, events[i].Seq, events[i-1].Seq)
			}
		}
	}
}

func TestTailMissingLog(t *testing.T) {
	events, err := Tail(filepath.Join(t.TempDir(), "activity.log"), 10)
	if err != nil || len(events) != 0 {
		t.Fatalf("Tail on missing log = (%v, %v), want empty", events, err)
	}
}

func TestReadSkipsTornFinalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	writeEvents(t, path, 2)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	file.WriteString(`{"session_id":"s1","seq":3,"ty`)
	file.Close()

	events, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Read returned %d events, want 2", len(events))
	}
}

func TestReadReportsCorruptLineBeforeEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	writeEvents(t, path, 1)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	file.WriteString("not json\n")
	file.WriteString(`{"session_id":"s1","seq":3,"type":"status","message":"after"}` + "\n")
	file.Close()

	_, err = Read(path)
	if !errors.Is(err, ErrCorrupt) || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("Read error = %v, want ErrCorrupt at line 2", err)
	}
	if _, err := Tail(path, 5); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Tail error = %v, want ErrCorrupt", err)
	}
}

func TestOpenDropsTornFinalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	writeEvents(t, path, 2)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	file.WriteString(`{"session_id":"s1","seq":3,"ty`)
	file.Close()

	writer, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := writer.Append(event("s1", 3)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	writer.Close()

	events, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 3 || events[2].Seq != 3 || events[2].Message != "step <3>" {
		t.Fatalf("Read = %+v, want three intact events", events)
	}
}

func TestArchiveIsReadTransparently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	writeEvents(t, path, 60)

	archived, err := Archive(path)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if archived != path+".zst" {
		t.Errorf("archive path = %q", archived)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("plain log still present after archival: %v", err)
	}

	events, err := Tail(path, 50)
	if err != nil {
		t.Fatalf("Tail on archived log: %v", err)
	}
	if len(events) != 50 || events[0].Seq != 11 || events[49].Seq != 60 {
		t.Fatalf("Tail on archive returned %d events from seq %d", len(events), events[0].Seq)
	}
}

func TestStoreKeepsSessionsApart(t *testing.T) {
	root := t.TempDir()
	store := NewStore(func(id string) string { return filepath.Join(root, id+".log") })
	defer store.CloseAll()

	for i := 1; i <= 3; i++ {
		if err := store.Append(event("alpha", uint64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Append(event("beta", 1)); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(progress.Event{Type: progress.TypeStatus}); err == nil {
		t.Error("Append without a session id succeeded")
	}

	alpha, _ := store.Tail("alpha", 50)
	beta, _ := store.Tail("beta", 50)
	if len(alpha) != 3 || len(beta) != 1 {
		t.Fatalf("alpha has %d events, beta %d; want 3 and 1", len(alpha), len(beta))
	}

	if _, err := store.Archive("alpha"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	alpha, err := store.Tail("alpha", 50)
	if err != nil || len(alpha) != 3 {
		t.Fatalf("Tail after Archive = (%d events, %v)", len(alpha), err)
	}
}
