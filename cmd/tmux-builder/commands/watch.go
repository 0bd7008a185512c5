// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/cocreateceo/tmux-builder-sub002/cmd/tmux-builder/cli"
	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

func eventsCommand() *cli.Command {
	var params clientParams
	var limit int
	return &cli.Command{
		Name:    "events",
		Summary: "Show a session's recent events",
		Description: `Print the most recent events of a session's activity log, oldest
first. Works for ended sessions too, including archived logs.`,
		Usage: "tmux-builder events <session-id> [--limit N] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("events")
			params.addFlags(flagSet)
			flagSet.IntVarP(&limit, "limit", "n", 50, "number of events (at most 1000)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return errors.New("exactly one session id required")
			}
			client, err := params.client()
			if err != nil {
				return err
			}
			events, err := client.Events(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(events); done {
				return err
			}
			renderer := newFrameRenderer(os.Stdout)
			for _, event := range events {
				fmt.Println(renderer.render(event.Frame()))
			}
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	var params clientParams
	return &cli.Command{
		Name:    "watch",
		Summary: "Follow a session's events live",
		Description: `Connect to a session's push channel and print events as the
agent reports them. Recent events are replayed first. Returns when the
session ends. Exits 1 when the stream ends with an error event.`,
		Usage: "tmux-builder watch <session-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("watch")
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return errors.New("exactly one session id required")
			}
			client, err := params.client()
			if err != nil {
				return err
			}
			return watch(ctx, client.StreamURL(args[0]), os.Stdout, params.OutputJSON, logger)
		},
	}
}

// watch prints the frames of one push-channel connection until the
// server closes it or ctx is cancelled.
func watch(ctx context.Context, url string, w io.Writer, raw bool, logger *slog.Logger) error {
	conn, response, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if response != nil {
			return fmt.Errorf("connecting to %s: %s", url, response.Status)
		}
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	})
	defer stop()

	renderer := newFrameRenderer(w)
	var last progress.Type
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				return fmt.Errorf("reading stream: %w", err)
			}
			logger.Debug("stream closed", "code", closeErr.Code, "reason", closeErr.Text)
			switch closeErr.Code {
			case websocket.CloseNormalClosure:
				if last == progress.TypeError {
					return &cli.ExitError{Code: 1}
				}
				return nil
			case websocket.CloseTryAgainLater:
				return errors.New("stream ended: this observer fell behind; run watch again to resume from the replay")
			case websocket.CloseGoingAway:
				return errors.New("stream ended: orchestrator shutting down")
			}
			return fmt.Errorf("stream closed: %s", closeErr.Text)
		}

		var frame progress.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Debug("ignoring malformed frame", "error", err)
			continue
		}
		if frame.Type == "pong" {
			continue
		}
		last = frame.Type
		if raw {
			fmt.Fprintln(w, string(data))
			continue
		}
		fmt.Fprintln(w, renderer.render(frame))
	}
}

// frameRenderer formats frames for a terminal. Colors are dropped
// when the writer is not a terminal.
type frameRenderer struct {
	timestamp lipgloss.Style
	phase     lipgloss.Style
	types     map[progress.Type]lipgloss.Style
	fallback  lipgloss.Style
}

func newFrameRenderer(w io.Writer) *frameRenderer {
	renderer := lipgloss.NewRenderer(w)
	label := renderer.NewStyle().Width(8)
	return &frameRenderer{
		timestamp: renderer.NewStyle().Faint(true),
		phase:     renderer.NewStyle().Italic(true).Foreground(lipgloss.Color("8")),
		types: map[progress.Type]lipgloss.Style{
			progress.TypeAck:      label.Foreground(lipgloss.Color("6")),
			progress.TypeStatus:   label,
			progress.TypeProgress: label.Foreground(lipgloss.Color("4")),
			progress.TypeDone:     label.Bold(true).Foreground(lipgloss.Color("2")),
			progress.TypeError:    label.Bold(true).Foreground(lipgloss.Color("1")),
			progress.TypeCustom:   label.Foreground(lipgloss.Color("5")),
		},
		fallback: label,
	}
}

// render returns one line: time, type, optional percentage and phase,
// then the message.
func (r *frameRenderer) render(frame progress.Frame) string {
	style, ok := r.types[frame.Type]
	if !ok {
		style = r.fallback
	}
	parts := []string{
		r.timestamp.Render(frame.Timestamp.Local().Format(time.TimeOnly)),
		style.Render(string(frame.Type)),
	}
	if frame.Percent != nil {
		parts = append(parts, fmt.Sprintf("%3d%%", *frame.Percent))
	}
	if frame.Phase != "" {
		parts = append(parts, r.phase.Render("["+frame.Phase+"]"))
	}
	if frame.Message != "" {
		parts = append(parts, frame.Message)
	}
	return strings.Join(parts, " ")
}
