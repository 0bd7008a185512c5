// Copyright 2026 The Tmux Builder Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package marker

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// NewWatcher returns the inotify-backed Watcher.
func NewWatcher() Watcher { return InotifyWatcher{} }

// InotifyWatcher watches for IN_CREATE and IN_MOVED_TO on the markers
// directory. Callers must check for the file after Watch returns, not
// before, so that a file created in between is never missed.
type InotifyWatcher struct{}

// Watch installs the inotify watch and starts a reader goroutine.
func (InotifyWatcher) Watch(directory, fileName string) (<-chan struct{}, func(), error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, nil, fmt.Errorf("inotify_init1: %w", err)
	}
	if _, err := unix.InotifyAddWatch(fd, directory, unix.IN_CREATE|unix.IN_MOVED_TO); err != nil {
		unix.Close(fd)
		return nil, nil, fmt.Errorf("inotify_add_watch on %s: %w", directory, err)
	}

	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	go readInotify(fd, fileName, wake, done)

	var once sync.Once
	return wake, func() { once.Do(func() { close(done) }) }, nil
}

// readInotify owns fd and closes it on exit. poll(2) with a 100ms
// timeout keeps the loop responsive to done.
func readInotify(fd int, fileName string, wake chan<- struct{}, done <-chan struct{}) {
	defer unix.Close(fd)

	buffer := make([]byte, 4096)
	for {
		select {
		case <-done:
			return
		default:
		}

		descriptors := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		count, err := unix.Poll(descriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if count == 0 {
			continue
		}

		read, err := unix.Read(fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}
		if eventsName(buffer[:read], fileName) {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

// eventsName scans raw inotify_event records for one naming fileName.
// Each record is a 16-byte header (wd, mask, cookie, len) followed by
// len bytes of NUL-padded name.
func eventsName(buffer []byte, fileName string) bool {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		end := offset + unix.SizeofInotifyEvent + nameLength
		if end > len(buffer) {
			return false
		}
		if nameLength > 0 && trimNUL(buffer[offset+unix.SizeofInotifyEvent:end]) == fileName {
			return true
		}
		offset = end
	}
	return false
}

func trimNUL(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
