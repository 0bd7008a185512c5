// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the package tests.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-deadline pattern so that a broken test fails instead of
// hanging. Timer-driven code under test runs on a fake clock; these
// bound only the wait for goroutines to react.
//
// [SocketDir] returns a short directory under /tmp for Unix sockets,
// whose paths are limited to 108 bytes and so cannot live in the
// nested directories returned by t.TempDir on some systems.
package testutil
