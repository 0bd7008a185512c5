// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cocreateceo/tmux-builder-sub002/lib/clock"
	"github.com/cocreateceo/tmux-builder-sub002/lib/marker"
	"github.com/cocreateceo/tmux-builder-sub002/lib/session"
	"github.com/cocreateceo/tmux-builder-sub002/lib/tmux"
)

// Terminal types into a named terminal session.
type Terminal interface {
	SendLiteral(name, text string) error
	SendKey(name string, key tmux.Key) error
}

// Target identifies the session an instruction is for.
type Target struct {
	SessionID string
	Terminal  string
	Paths     session.Paths
}

// Instruction records one delivered instruction.
type Instruction struct {
	Text    string    `json:"text"`
	Target  string    `json:"target_session"`
	SentAt  time.Time `json:"sent_at"`
	Attempt int       `json:"attempt"`
}

// Receipt describes an acknowledged dispatch.
type Receipt struct {
	Instruction Instruction `json:"instruction"`
	Prompt      PromptFile  `json:"prompt"`
	Attempts    int         `json:"attempts"`
}

// Dispatcher writes prompts and delivers instructions.
type Dispatcher struct {
	terminal     Terminal
	synchronizer *marker.Synchronizer
	clock        clock.Clock
	logger       *slog.Logger
}

// New returns a Dispatcher.
func New(terminal Terminal, synchronizer *marker.Synchronizer, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{terminal: terminal, synchronizer: synchronizer, clock: clk, logger: logger}
}

// Dispatch writes task to the target's prompt file, sends the task
// instruction, and returns once the agent has acknowledged it. ack, when
// non-nil, is an out-of-band acknowledgement equivalent to the ack
// marker. Errors are *session.DeliveryError for a terminal that refused
// the keystrokes, *marker.TimeoutError when every attempt went
// unacknowledged, or a filesystem error from writing the prompt.
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, task string, ack <-chan struct{}, options marker.HandshakeOptions) (Receipt, error) {
	prompt, err := WritePrompt(target.Paths.Prompt, task, d.clock.Now().UTC())
	if err != nil {
		return Receipt{}, err
	}
	text, err := TaskInstruction(InstructionPaths{
		Prompt:          target.Paths.Prompt,
		AckMarker:       marker.Path(target.Paths.Markers, marker.Ack),
		CompletedMarker: marker.Path(target.Paths.Markers, marker.Completed),
		NotifyCommand:   notifyCommand(target.Paths.NotifyScript),
	})
	if err != nil {
		return Receipt{}, err
	}

	options.Wait.Signal = ack
	instruction, attempts, err := d.Deliver(ctx, target, text, marker.Ack, options)
	receipt := Receipt{Instruction: instruction, Prompt: prompt, Attempts: attempts}
	if err != nil {
		return receipt, err
	}
	d.logger.Info("instruction acknowledged",
		"session_id", target.SessionID,
		"attempts", attempts,
		"prompt_digest", prompt.Digest,
	)
	return receipt, nil
}

// AwaitReady runs the ready handshake. A ready marker the agent wrote
// on its own during startup is accepted without sending anything.
func (d *Dispatcher) AwaitReady(ctx context.Context, target Target, options marker.HandshakeOptions) (int, error) {
	if _, err := os.Stat(marker.Path(target.Paths.Markers, marker.Ready)); err == nil {
		if _, err := d.synchronizer.Wait(ctx, target.Paths.Markers, marker.Ready, options.Wait); err != nil {
			return 0, err
		}
		d.logger.Info("agent announced readiness", "session_id", target.SessionID)
		return 0, nil
	}

	text, err := ReadyInstruction(marker.Path(target.Paths.Markers, marker.Ready))
	if err != nil {
		return 0, err
	}
	_, attempts, err := d.Deliver(ctx, target, text, marker.Ready, options)
	return attempts, err
}

// Deliver types text into the target terminal and runs the handshake
// on name. Retries clear the input line first so a resend never lands
// after leftover text.
func (d *Dispatcher) Deliver(ctx context.Context, target Target, text string, name marker.Name, options marker.HandshakeOptions) (Instruction, int, error) {
	instruction := Instruction{Text: text, Target: target.Terminal}

	send := func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			if err := d.terminal.SendKey(target.Terminal, tmux.KeyCtrlU); err != nil {
				return &session.DeliveryError{ID: target.SessionID, Op: "clear line", Err: err}
			}
		}
		if err := d.terminal.SendLiteral(target.Terminal, text); err != nil {
			return &session.DeliveryError{ID: target.SessionID, Op: "literal send", Err: err}
		}
		if err := d.terminal.SendKey(target.Terminal, tmux.KeyEnter); err != nil {
			return &session.DeliveryError{ID: target.SessionID, Op: "enter", Err: err}
		}
		instruction.SentAt = d.clock.Now().UTC()
		instruction.Attempt = attempt
		d.logger.Debug("instruction sent",
			"session_id", target.SessionID, "marker", name, "attempt", attempt)
		return nil
	}

	attempts, err := d.synchronizer.Handshake(ctx, target.Paths.Markers, name, options, send)
	return instruction, attempts, err
}

func notifyCommand(script string) string {
	if script == "" {
		return ""
	}
	if _, err := os.Stat(script); err != nil {
		return ""
	}
	return script
}
