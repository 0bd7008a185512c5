// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package activitylog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// ArchivePath returns where Archive writes the compressed copy of the
// log at path.
func ArchivePath(path string) string { return path + ".zst" }

// Archive compresses the log at path to ArchivePath(path) and removes
// the original. The archive is written to a temporary file and renamed
// into place, so a crash leaves either the plain log or the complete
// archive. The writer for path must be closed first.
func Archive(path string) (string, error) {
	source, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening activity log for archival: %w", err)
	}
	defer source.Close()

	destination := ArchivePath(path)
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(destination)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	fail := func(step string, err error) (string, error) {
		temporary.Close()
		os.Remove(temporary.Name())
		return "", fmt.Errorf("%s archive %s: %w", step, destination, err)
	}

	encoder, err := zstd.NewWriter(temporary, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fail("initializing", err)
	}
	if _, err := io.Copy(encoder, source); err != nil {
		encoder.Close()
		return fail("compressing", err)
	}
	if err := encoder.Close(); err != nil {
		return fail("finishing", err)
	}
	if err := temporary.Sync(); err != nil {
		return fail("syncing", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporary.Name())
		return "", fmt.Errorf("closing archive %s: %w", destination, err)
	}
	if err := os.Rename(temporary.Name(), destination); err != nil {
		os.Remove(temporary.Name())
		return "", fmt.Errorf("renaming archive into place: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return destination, fmt.Errorf("removing archived activity log: %w", err)
	}
	return destination, nil
}
