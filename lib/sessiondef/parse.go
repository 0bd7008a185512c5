// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessiondef parses and validates session templates. A
// template describes a session to start: where the agent works, what
// it is called, the task it receives once ready, and extra environment
// for its terminal.
//
// Templates are authored as JSONC files (JSON extended with comments
// and trailing commas). The same structure, as plain JSON, is the body
// of a start request to the controller API.
package sessiondef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// Template describes a session to start.
type Template struct {
	Label            string            `json:"label,omitempty"`
	WorkingDirectory string            `json:"working_directory"`
	InitialTask      string            `json:"initial_task,omitempty"`
	Environment      map[string]string `json:"env,omitempty"`
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result. Unknown fields are rejected so a misspelled
// key does not silently drop a setting.
func Parse(data []byte) (*Template, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()

	var template Template
	if err := decoder.Decode(&template); err != nil {
		return nil, fmt.Errorf("parsing session template: %w", err)
	}
	return &template, nil
}

// ReadFile reads and parses a template file. A relative
// working_directory is taken relative to the file's directory, and an
// initial_task of the form "@path" is replaced by the contents of that
// file (also relative to the template).
func ReadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	template, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	if template.WorkingDirectory != "" && !filepath.IsAbs(template.WorkingDirectory) {
		template.WorkingDirectory = filepath.Join(base, template.WorkingDirectory)
	}
	if reference, ok := strings.CutPrefix(template.InitialTask, "@"); ok {
		if !filepath.IsAbs(reference) {
			reference = filepath.Join(base, reference)
		}
		task, err := os.ReadFile(reference)
		if err != nil {
			return nil, fmt.Errorf("%s: reading initial task: %w", path, err)
		}
		template.InitialTask = string(task)
	}
	return template, nil
}

// NameFromPath returns the template name for a file path: the base
// name without its extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
