// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package marker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Name identifies a handshake step.
type Name string

const (
	// Ready is created once by a freshly started agent.
	Ready Name = "ready"

	// Ack is created by the agent when it has accepted an instruction.
	Ack Name = "ack"

	// Completed is created when the agent has finished a task.
	Completed Name = "completed"
)

// FileName returns the marker's file name inside a markers directory.
func (n Name) FileName() string { return string(n) + ".marker" }

// Valid reports whether n is one of the known markers.
func (n Name) Valid() bool {
	switch n {
	case Ready, Ack, Completed:
		return true
	}
	return false
}

// Path returns the absolute marker path in directory.
func Path(directory string, name Name) string {
	return filepath.Join(directory, name.FileName())
}

// Delete removes a marker. A marker that does not exist is not an
// error.
func Delete(directory string, name Name) error {
	err := os.Remove(Path(directory, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s marker: %w", name, err)
	}
	return nil
}
