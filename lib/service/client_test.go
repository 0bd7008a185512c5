// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cocreateceo/tmux-builder-sub002/lib/codec"
)

func TestClientCallDecodesResult(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	server.Handle("emit", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Message string `cbor:"message"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return map[string]string{"echo": request.Message}, nil
	})
	startSocketServer(t, server)

	var result struct {
		Echo string `cbor:"echo"`
	}
	err := NewSocketClient(socketPath).Call(t.Context(), "emit", map[string]any{"message": "hello"}, &result)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Echo != "hello" {
		t.Errorf("echo = %q", result.Echo)
	}
}

func TestClientCallServiceError(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	server.Handle("emit", func(context.Context, []byte) (any, error) {
		return nil, errors.New("session s1 is completed")
	})
	startSocketServer(t, server)

	err := NewSocketClient(socketPath).Call(t.Context(), "emit", nil, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("Call error = %v, want *ServiceError", err)
	}
	if serviceErr.Action != "emit" || serviceErr.Message != "session s1 is completed" {
		t.Errorf("ServiceError = %+v", serviceErr)
	}
}

func TestClientCallConnectionRefused(t *testing.T) {
	err := NewSocketClient(testSocketPath(t)).Call(t.Context(), "emit", nil, nil)
	if err == nil {
		t.Fatal("Call to a missing socket succeeded")
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		t.Errorf("connection failure reported as *ServiceError: %v", err)
	}
}
