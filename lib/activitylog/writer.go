// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package activitylog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("activity log closed")

// Writer appends events to a single activity log. It is safe for
// concurrent use.
type Writer struct {
	path    string
	mutex   sync.Mutex
	file    *os.File
	encoder *json.Encoder
	closed  bool
}

// Open opens path for appending, creating it if needed. Existing
// content is kept.
func Open(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening activity log %q: %w", path, err)
	}
	if err := dropTornLine(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("repairing activity log %q: %w", path, err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetEscapeHTML(false)
	return &Writer{path: path, file: file, encoder: encoder}, nil
}

// dropTornLine truncates file after its last newline, removing a
// final line left incomplete by an interrupted write.
func dropTornLine(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return err
	}
	end := info.Size()
	buffer := make([]byte, 4096)
	for offset := end; offset > 0; {
		size := min(int64(len(buffer)), offset)
		offset -= size
		if _, err := file.ReadAt(buffer[:size], offset); err != nil {
			return err
		}
		if i := bytes.LastIndexByte(buffer[:size], '\n'); i >= 0 {
			if keep := offset + int64(i) + 1; keep < end {
				return file.Truncate(keep)
			}
			return nil
		}
	}
	if end > 0 {
		return file.Truncate(0)
	}
	return nil
}

// Path returns the log's file path.
func (w *Writer) Path() string { return w.path }

// Append writes event as one line and syncs the file.
func (w *Writer) Append(event progress.Event) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.encoder.Encode(event); err != nil {
		return fmt.Errorf("encoding activity event: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing activity log: %w", err)
	}
	return nil
}

// Close closes the file. Further calls return nil.
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
