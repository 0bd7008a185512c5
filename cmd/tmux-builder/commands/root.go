// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the tmux-builder command tree.
package commands

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/cocreateceo/tmux-builder-sub002/cmd/tmux-builder/cli"
	"github.com/cocreateceo/tmux-builder-sub002/lib/apiclient"
)

// ServerEnvironmentVariable overrides the default API address for
// client commands.
const ServerEnvironmentVariable = "TMUX_BUILDER_SERVER"

const defaultServer = "127.0.0.1:8742"

// Root returns the top-level command.
func Root() *cli.Command {
	return &cli.Command{
		Name: "tmux-builder",
		Description: `Orchestrate coding agents running in tmux sessions.

"tmux-builder serve" runs the orchestrator. The other commands talk to
it over its HTTP API (--server, or $TMUX_BUILDER_SERVER).`,
		Subcommands: []*cli.Command{
			serveCommand(),
			startCommand(),
			dispatchCommand(),
			statusCommand(),
			eventsCommand(),
			watchCommand(),
			completeCommand(),
			killCommand(),
			versionCommand(),
		},
	}
}

// clientParams are the flags shared by every API client command.
type clientParams struct {
	cli.JSONOutput
	Server string
}

func (p *clientParams) addFlags(flagSet *pflag.FlagSet) {
	server := os.Getenv(ServerEnvironmentVariable)
	if server == "" {
		server = defaultServer
	}
	flagSet.StringVar(&p.Server, "server", server, "orchestrator API address (env "+ServerEnvironmentVariable+")")
	p.AddFlag(flagSet)
}

func (p *clientParams) client() (*apiclient.Client, error) {
	return apiclient.New(p.Server)
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}
