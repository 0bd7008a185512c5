// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package sessiondef

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var environmentNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedPrefix is used by the variables the orchestrator sets in
// every agent terminal.
const reservedPrefix = "TMUX_BUILDER_"

// Validate checks a template for structural issues and returns them as
// human-readable descriptions. An empty list means the template is
// valid. It does not check that the working directory exists; that is
// decided on the host that starts the session.
func Validate(template *Template) []string {
	var issues []string

	switch {
	case template.WorkingDirectory == "":
		issues = append(issues, "working_directory is required")
	case !filepath.IsAbs(template.WorkingDirectory):
		issues = append(issues, fmt.Sprintf("working_directory %q must be absolute", template.WorkingDirectory))
	}
	if strings.ContainsAny(template.Label, "\r\n") {
		issues = append(issues, "label must be a single line")
	}

	names := make([]string, 0, len(template.Environment))
	for name := range template.Environment {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		switch {
		case !environmentNamePattern.MatchString(name):
			issues = append(issues, fmt.Sprintf("env %q: not a valid variable name", name))
		case strings.HasPrefix(name, reservedPrefix):
			issues = append(issues, fmt.Sprintf("env %q: the %s prefix is reserved", name, reservedPrefix))
		}
		if strings.ContainsRune(template.Environment[name], 0) {
			issues = append(issues, fmt.Sprintf("env %q: value contains a NUL byte", name))
		}
	}
	return issues
}
