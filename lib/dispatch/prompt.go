// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"

	"github.com/cocreateceo/tmux-builder-sub002/lib/statefile"
)

// promptDomainKey separates prompt digests from any other BLAKE3
// keyed hash.
var promptDomainKey = [32]byte{
	't', 'm', 'u', 'x', '-', 'b', 'u', 'i', 'l', 'd', 'e', 'r', '.',
	'p', 'r', 'o', 'm', 'p', 't',
}

// PromptFile records a prompt written for the agent.
type PromptFile struct {
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	Size      int       `json:"size"`
	WrittenAt time.Time `json:"written_at"`
}

// WritePrompt atomically replaces the prompt at path with content. The
// agent only ever sees a complete prompt.
func WritePrompt(path, content string, now time.Time) (PromptFile, error) {
	if err := statefile.Write(path, []byte(content), 0o644); err != nil {
		return PromptFile{}, err
	}
	return PromptFile{
		Path:      path,
		Digest:    Digest([]byte(content)),
		Size:      len(content),
		WrittenAt: now,
	}, nil
}

// Digest returns the hex BLAKE3 keyed hash of a prompt body.
func Digest(content []byte) string {
	hasher, err := blake3.NewKeyed(promptDomainKey[:])
	if err != nil {
		// Only a key of the wrong length fails, and the key is fixed.
		panic("dispatch: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(content)
	return hex.EncodeToString(hasher.Sum(nil))
}
