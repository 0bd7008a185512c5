// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/cocreateceo/tmux-builder-sub002/cmd/tmux-builder/cli"
	"github.com/cocreateceo/tmux-builder-sub002/lib/version"
)

type versionOutput struct {
	Client string `json:"client"`
	Server string `json:"server,omitempty"`
	Error  string `json:"server_error,omitempty"`
}

func versionCommand() *cli.Command {
	var params clientParams
	var remote bool
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "tmux-builder version [--server-version] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("version")
			params.addFlags(flagSet)
			flagSet.BoolVar(&remote, "server-version", false, "also ask the orchestrator for its version")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			output := versionOutput{Client: version.Full()}
			if remote {
				client, err := params.client()
				if err != nil {
					return err
				}
				health, err := client.Health(ctx)
				if err != nil {
					output.Error = err.Error()
				} else {
					output.Server = health.Version
				}
			}
			if done, err := params.EmitJSON(output); done {
				return err
			}
			fmt.Printf("tmux-builder %s\n", output.Client)
			switch {
			case output.Server != "":
				fmt.Printf("server %s\n", output.Server)
			case output.Error != "":
				fmt.Printf("server unreachable: %s\n", output.Error)
			}
			return nil
		},
	}
}
