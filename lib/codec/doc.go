// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR encoding configuration shared by the
// notify socket protocol.
//
// JSON is used wherever a human or a browser reads the data: the HTTP
// API, push channel frames, status.json, and the activity log. CBOR is
// used on the per-session notify socket between the notify helper and
// the orchestrator. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2), so the same value always produces the same bytes.
//
// Types tagged `cbor` are socket-only. Types tagged `json` may travel
// in both formats, since fxamacker/cbor falls back to json tags.
package codec
