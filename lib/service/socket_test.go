// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/codec"
	"github.com/cocreateceo/tmux-builder-sub002/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(testutil.SocketDir(t), "notify.sock")
}

// startSocketServer runs server until the test ends.
func startSocketServer(t *testing.T, server *SocketServer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "Serve to return"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "socket server ready")
}

func sendRequest(t *testing.T, socketPath string, request any) Response {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to socket: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	conn.(*net.UnixConn).CloseWrite()

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}

func TestSocketServerDispatchesAction(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	server.Handle("emit", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Type string `cbor:"type"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return map[string]any{"seq": 3, "type": request.Type}, nil
	})
	startSocketServer(t, server)

	response := sendRequest(t, socketPath, map[string]any{"action": "emit", "type": "progress"})
	if !response.OK {
		t.Fatalf("response not ok: %s", response.Error)
	}
	var data struct {
		Seq  int    `cbor:"seq"`
		Type string `cbor:"type"`
	}
	if err := codec.Unmarshal(response.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Seq != 3 || data.Type != "progress" {
		t.Errorf("data = %+v", data)
	}
}

func TestSocketServerRejectsBadRequests(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	server.Handle("emit", func(context.Context, []byte) (any, error) {
		return nil, errors.New("unknown event type \"bogus\"")
	})
	startSocketServer(t, server)

	tests := []struct {
		name    string
		request any
		want    string
	}{
		{"unknown action", map[string]any{"action": "explode"}, `unknown action "explode"`},
		{"missing action", map[string]any{"type": "done"}, "missing required field: action"},
		{"handler error", map[string]any{"action": "emit"}, `unknown event type "bogus"`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response := sendRequest(t, socketPath, test.request)
			if response.OK || response.Error != test.want {
				t.Errorf("response = %+v, want error %q", response, test.want)
			}
		})
	}
}

func TestSocketServerNilResult(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	server.Handle("ping", func(context.Context, []byte) (any, error) { return nil, nil })
	startSocketServer(t, server)

	response := sendRequest(t, socketPath, map[string]any{"action": "ping"})
	if !response.OK || len(response.Data) != 0 {
		t.Errorf("response = %+v, want bare ok", response)
	}
}

func TestSocketServerConcurrentRequests(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	var mutex sync.Mutex
	count := 0
	server.Handle("emit", func(context.Context, []byte) (any, error) {
		mutex.Lock()
		defer mutex.Unlock()
		count++
		return nil, nil
	})
	startSocketServer(t, server)

	var group sync.WaitGroup
	for range 16 {
		group.Go(func() {
			client := NewSocketClient(socketPath)
			if err := client.Call(t.Context(), "emit", nil, nil); err != nil {
				t.Errorf("Call: %v", err)
			}
		})
	}
	group.Wait()

	if count != 16 {
		t.Errorf("handled %d requests, want 16", count)
	}
}

func TestSocketServerRemovesSocketOnShutdown(t *testing.T) {
	socketPath := testSocketPath(t)
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	server := NewSocketServer(socketPath, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "socket server ready")

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Serve to return"); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket file still present after shutdown: %v", err)
	}
}

func TestSocketServerDuplicateHandlerPanics(t *testing.T) {
	server := NewSocketServer(testSocketPath(t), testLogger())
	server.Handle("emit", func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("duplicate Handle did not panic")
		}
	}()
	server.Handle("emit", func(context.Context, []byte) (any, error) { return nil, nil })
}

func TestSocketServerRestrictsSocketToOwner(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	startSocketServer(t, server)

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("socket mode = %v, want 0600", mode)
	}
}

func TestSocketServerServesOnce(t *testing.T) {
	server := NewSocketServer(testSocketPath(t), testLogger())
	startSocketServer(t, server)

	if err := server.Serve(t.Context()); !errors.Is(err, ErrServed) {
		t.Errorf("second Serve = %v, want ErrServed", err)
	}
}
