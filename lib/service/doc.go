// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the server scaffolding shared by the
// orchestrator daemon: a one-request-per-connection CBOR Unix socket
// server with its client, and a TCP HTTP server with graceful
// shutdown.
//
// Both servers follow the same lifecycle. Serve(ctx) binds, closes the
// channel returned by Ready, and blocks until ctx is cancelled and the
// requests already in flight have finished.
package service
