// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

package activitylog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/cocreateceo/tmux-builder-sub002/lib/progress"
)

// maxLineSize bounds a single encoded event.
const maxLineSize = 1 << 20

// ErrCorrupt is returned for an undecodable line that is not the last
// line of the log. A torn final line, left by a write cut short, is
// skipped.
var ErrCorrupt = errors.New("corrupt activity log")

// Read returns every event in the log at path, or in its archive.
func Read(path string) ([]progress.Event, error) {
	var events []progress.Event
	err := scan(path, func(event progress.Event) {
		events = append(events, event)
	})
	return events, err
}

// Tail returns the last n events of the log at path, oldest first. A
// log that does not exist (plain or archived) yields no events and no
// error.
func Tail(path string, n int) ([]progress.Event, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]progress.Event, 0, n)
	start := 0
	err := scan(path, func(event progress.Event) {
		if len(ring) < n {
			ring = append(ring, event)
			return
		}
		ring[start] = event
		start = (start + 1) % n
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return append(ring[start:], ring[:start]...), nil
}

func scan(path string, visit func(progress.Event)) error {
	reader, closeReader, err := openLog(path)
	if err != nil {
		return err
	}
	defer closeReader()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	// torn holds the last undecodable line until another line shows it
	// was not the final one.
	var torn error
	number := 0
	for scanner.Scan() {
		number++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if torn != nil {
			return torn
		}
		var event progress.Event
		if err := json.Unmarshal(line, &event); err != nil {
			torn = fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, path, number, err)
			continue
		}
		visit(event)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading activity log %s: %w", path, err)
	}
	return nil
}

// openLog opens path, falling back to the zstd archive next to it.
func openLog(path string) (io.Reader, func(), error) {
	file, err := os.Open(path)
	if err == nil {
		return file, func() { file.Close() }, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}

	archived, archiveErr := os.Open(ArchivePath(path))
	if archiveErr != nil {
		// Report the original path: neither form exists.
		return nil, nil, err
	}
	decoder, err := zstd.NewReader(archived)
	if err != nil {
		archived.Close()
		return nil, nil, fmt.Errorf("opening archived activity log: %w", err)
	}
	return decoder, func() {
		decoder.Close()
		archived.Close()
	}, nil
}
