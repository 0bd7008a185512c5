// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/testutil"
)

func TestHTTPServerServesAndShutsDown(t *testing.T) {
	server := NewHTTPServer(HTTPServerConfig{
		Address: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "ok")
		}),
		Logger: testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "http server ready")

	response, err := http.Get("http://" + server.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Serve to return"); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestHTTPServerBadAddress(t *testing.T) {
	server := NewHTTPServer(HTTPServerConfig{
		Address: "256.0.0.1:99999",
		Handler: http.NotFoundHandler(),
		Logger:  testLogger(),
	})
	if err := server.Serve(t.Context()); err == nil {
		t.Fatal("Serve on an invalid address succeeded")
	}
}

func TestNewHTTPServerRequiresHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("missing handler did not panic")
		}
	}()
	NewHTTPServer(HTTPServerConfig{Address: ":0", Logger: testLogger()})
}
