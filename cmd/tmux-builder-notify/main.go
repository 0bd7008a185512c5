// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Tmux-builder-notify is the helper an agent runs to report progress.
// Each session gets a wrapper script ($TMUX_BUILDER_NOTIFY) that calls
// it with the session's notify socket:
//
//	$TMUX_BUILDER_NOTIFY ack
//	$TMUX_BUILDER_NOTIFY progress "writing tests" 60 --phase test
//	$TMUX_BUILDER_NOTIFY done "site built"
//
// It prints the event's sequence number on success.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/codec"
	"github.com/cocreateceo/tmux-builder-sub002/lib/notify"
	"github.com/cocreateceo/tmux-builder-sub002/lib/process"
)

const timeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	invocation, err := notify.ParseArgs(args)
	if err != nil {
		return err
	}

	if invocation.Debug {
		data, err := codec.Marshal(invocation.Request)
		if err != nil {
			return err
		}
		diagnostic, err := codec.Diagnose(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "request: %s\n", diagnostic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	seq, err := notify.Emit(ctx, invocation.Socket, invocation.Request)
	if err != nil {
		return fmt.Errorf("notify %s: %w", invocation.Request.Type, err)
	}
	fmt.Println(seq)
	return nil
}
