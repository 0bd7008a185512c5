// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cocreateceo/tmux-builder-sub002/lib/tmux"
)

// PreAuthorization is part of every task instruction. Without it an
// interactive agent may stop and ask for permission that nobody at the
// terminal will give.
const PreAuthorization = "You are pre-authorized to carry out this task without asking for confirmation."

// InstructionPaths are the absolute locations an instruction refers
// to.
type InstructionPaths struct {
	Prompt          string
	AckMarker       string
	CompletedMarker string
	NotifyCommand   string
}

// TaskInstruction builds the single-line instruction that points the
// agent at its prompt file.
func TaskInstruction(paths InstructionPaths) (string, error) {
	for name, path := range map[string]string{
		"prompt":           paths.Prompt,
		"ack marker":       paths.AckMarker,
		"completed marker": paths.CompletedMarker,
	} {
		if !filepath.IsAbs(path) {
			return "", fmt.Errorf("%s path %q is not absolute", name, path)
		}
	}

	parts := []string{
		fmt.Sprintf("Read the task in %s and carry it out.", shellQuote(paths.Prompt)),
		PreAuthorization,
		fmt.Sprintf("First run: touch %s", shellQuote(paths.AckMarker)),
	}
	if paths.NotifyCommand != "" {
		parts = append(parts, fmt.Sprintf(
			"Report progress with: %s <status|progress|done|error> [message] [percent]",
			shellQuote(paths.NotifyCommand)))
	}
	parts = append(parts, fmt.Sprintf("When the task is finished run: touch %s", shellQuote(paths.CompletedMarker)))
	return singleLine(strings.Join(parts, " "))
}

// ReadyInstruction asks a freshly started agent to confirm it is
// accepting input.
func ReadyInstruction(readyMarker string) (string, error) {
	if !filepath.IsAbs(readyMarker) {
		return "", fmt.Errorf("ready marker path %q is not absolute", readyMarker)
	}
	return singleLine(fmt.Sprintf(
		"Run: touch %s to confirm you are ready, then wait for the next instruction. %s",
		shellQuote(readyMarker), PreAuthorization))
}

// singleLine rejects text tmux would not type as one literal line. A
// path containing a line break ends up here.
func singleLine(text string) (string, error) {
	if err := tmux.ValidateLiteral(text); err != nil {
		return "", fmt.Errorf("building instruction: %w", err)
	}
	return text, nil
}

// shellQuote wraps path in single quotes when it contains anything a
// shell would interpret.
func shellQuote(path string) string {
	if path != "" && !strings.ContainsAny(path, " \t'\"\\$`!*?[]{}()<>|&;#~") {
		return path
	}
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
