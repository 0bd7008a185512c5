// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the orchestrator's YAML configuration.
//
// Configuration comes from a single file named by the
// TMUX_BUILDER_CONFIG environment variable ([Load]) or a --config
// flag ([LoadFile]). There is no discovery and no fallback file.
// [Default] supplies values for every key the file leaves out, so a
// file may be as short as one line.
//
// The file may carry development, staging, and production sections.
// The one matching [Config].Environment is decoded over the base
// values after the file is read, so it can override any key.
//
// Path values expand ${HOME}, ${TMUX_BUILDER_ROOT}, and
// ${VAR:-default}. Durations use Go syntax ("500ms", "2h").
package config
