// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

// Invocation is a parsed notify helper command line.
type Invocation struct {
	Socket  string
	Debug   bool
	Request Request
}

// Usage is the helper's synopsis.
const Usage = "notify <ack|status|progress|done|error|custom> [message] [percent] [--phase P]"

// ParseArgs parses the helper's arguments. Flags may appear anywhere.
// For a progress event a lone numeric argument is the percentage:
// "notify progress 40" and "notify progress '' 40" mean the same.
func ParseArgs(args []string) (Invocation, error) {
	var invocation Invocation
	flags := pflag.NewFlagSet("notify", pflag.ContinueOnError)
	flags.SetInterspersed(true)
	flags.Usage = func() {}
	flags.StringVar(&invocation.Socket, "socket", "", "notify socket of the session")
	flags.StringVar(&invocation.Request.Phase, "phase", "", "phase of the work being reported")
	flags.BoolVar(&invocation.Debug, "debug", false, "print the request in CBOR diagnostic notation")
	if err := flags.Parse(args); err != nil {
		return Invocation{}, err
	}
	if invocation.Socket == "" {
		return Invocation{}, errors.New("--socket is required")
	}

	positional := flags.Args()
	if len(positional) == 0 || len(positional) > 3 {
		return Invocation{}, fmt.Errorf("usage: %s", Usage)
	}

	kind, err := progress.ParseType(strings.ToLower(positional[0]))
	if err != nil {
		return Invocation{}, err
	}
	invocation.Request.Type = kind

	switch len(positional) {
	case 3:
		invocation.Request.Message = positional[1]
		percent, err := parsePercent(positional[2])
		if err != nil {
			return Invocation{}, err
		}
		invocation.Request.Percent = percent
	case 2:
		if kind == progress.TypeProgress {
			if percent, err := parsePercent(positional[1]); err == nil {
				invocation.Request.Percent = percent
				break
			}
		}
		invocation.Request.Message = positional[1]
	}
	return invocation, nil
}

func parsePercent(s string) (*int, error) {
	value, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return nil, fmt.Errorf("percent %q is not a number", s)
	}
	if value < 0 || value > 100 {
		return nil, fmt.Errorf("percent %d outside 0-100", value)
	}
	return &value, nil
}
